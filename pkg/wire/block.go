package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// Block is a full consensus-serialized block: an 80-byte header followed
// by its transaction list.
type Block struct {
	Header       Header
	Transactions []*Transaction
}

// Hash returns the block's hash (the header hash).
func (b *Block) Hash() chainhash.Hash {
	return b.Header.Hash()
}

// Serialize encodes the block as header || varint(tx count) || txs.
func (b *Block) Serialize() []byte {
	buf := make([]byte, 0, HeaderSize+len(b.Transactions)*256)
	buf = append(buf, b.Header.Serialize()...)
	buf = AppendVarInt(buf, uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		buf = append(buf, tx.Serialize()...)
	}
	return buf
}

// ParseBlock decodes a Block from r.
func ParseBlock(r io.Reader) (*Block, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	txCount, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read block tx count: %w", err)
	}
	txs := make([]*Transaction, txCount)
	for i := range txs {
		tx, err := ParseTransaction(r)
		if err != nil {
			return nil, fmt.Errorf("wire: parse block tx %d: %w", i, err)
		}
		txs[i] = tx
	}
	return &Block{Header: *header, Transactions: txs}, nil
}

// ParseBlockBytes is a convenience wrapper around ParseBlock.
func ParseBlockBytes(b []byte) (*Block, error) {
	return ParseBlock(bytes.NewReader(b))
}

// Meta is the per-block metadata cached under the txstore CF's X row.
type Meta struct {
	TxCount uint32
	Size    uint32
	Weight  uint32
	Time    uint32
}

// ComputeMeta derives blockmeta from a decoded block and its serialized size.
func ComputeMeta(b *Block, rawSize int) Meta {
	baseSize := HeaderSize + VarIntSize(uint64(len(b.Transactions)))
	totalSize := baseSize
	for _, tx := range b.Transactions {
		baseSize += len(strippedWitness(tx))
		totalSize += len(tx.Serialize())
	}
	return Meta{
		TxCount: uint32(len(b.Transactions)),
		Size:    uint32(rawSize),
		Weight:  uint32(3*baseSize + totalSize),
		Time:    b.Header.Time,
	}
}

// strippedWitness returns tx's serialized form without witness data, used
// for the base-size half of the weight computation.
func strippedWitness(tx *Transaction) []byte {
	if !tx.hasWitness() {
		return tx.Serialize()
	}
	stripped := &Transaction{Version: tx.Version, LockTime: tx.LockTime, Outputs: tx.Outputs}
	stripped.Inputs = make([]TxIn, len(tx.Inputs))
	for i, in := range tx.Inputs {
		stripped.Inputs[i] = TxIn{PrevOut: in.PrevOut, Script: in.Script, Sequence: in.Sequence}
	}
	return stripped.Serialize()
}
