package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// HeaderSize is the fixed serialized size of a block header: 80 bytes.
const HeaderSize = 80

// Header is a Bitcoin-consensus 80-byte block header.
type Header struct {
	Version    uint32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// Serialize encodes the header in its fixed 80-byte consensus layout.
func (h *Header) Serialize() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Time)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// Hash returns the double-SHA256 block hash of the header.
func (h *Header) Hash() chainhash.Hash {
	return chainhash.Sum(h.Serialize())
}

// ParseHeader decodes a Header from exactly HeaderSize bytes.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("wire: short header, need %d have %d", HeaderSize, len(b))
	}
	h := &Header{}
	h.Version = binary.LittleEndian.Uint32(b[0:4])
	copy(h.PrevHash[:], b[4:36])
	copy(h.MerkleRoot[:], b[36:68])
	h.Time = binary.LittleEndian.Uint32(b[68:72])
	h.Bits = binary.LittleEndian.Uint32(b[72:76])
	h.Nonce = binary.LittleEndian.Uint32(b[76:80])
	return h, nil
}

// ReadHeader reads a Header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("wire: read header: %w", err)
	}
	return ParseHeader(buf[:])
}
