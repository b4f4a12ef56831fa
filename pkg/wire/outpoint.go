package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// OutpointSize is the serialized size of an Outpoint: 32-byte txid + 4-byte index.
const OutpointSize = chainhash.Size + 4

// Outpoint identifies a transaction output being spent: (txid, vout).
type Outpoint struct {
	TxID chainhash.Hash
	Vout uint32
}

// IsZero reports whether op is the all-zero outpoint (the coinbase marker).
func (op Outpoint) IsZero() bool {
	return op.TxID.IsZero() && op.Vout == 0
}

// String renders the outpoint as "txid:vout".
func (op Outpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Vout)
}

// Append serializes op in consensus order: txid then little-endian vout.
func (op Outpoint) Append(buf []byte) []byte {
	buf = append(buf, op.TxID[:]...)
	return binary.LittleEndian.AppendUint32(buf, op.Vout)
}

// ParseOutpoint reads an Outpoint from the head of b, returning the
// remaining bytes.
func ParseOutpoint(b []byte) (Outpoint, []byte, error) {
	if len(b) < OutpointSize {
		return Outpoint{}, nil, fmt.Errorf("wire: short outpoint, need %d have %d", OutpointSize, len(b))
	}
	var op Outpoint
	copy(op.TxID[:], b[:chainhash.Size])
	op.Vout = binary.LittleEndian.Uint32(b[chainhash.Size:OutpointSize])
	return op, b[OutpointSize:], nil
}
