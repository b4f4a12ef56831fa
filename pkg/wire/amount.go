package wire

import (
	"encoding/binary"
	"fmt"
)

// Amount is the value-or-commitment sum type required for the Elements/
// Liquid variant: a plain output carries Value with Valid set; a
// confidential (blinded) output carries only a Commitment and Valid
// false. Downstream code must never read Value without checking Valid
// first — see SPEC_FULL.md §3.
type Amount struct {
	Value      uint64
	Valid      bool
	Commitment []byte // non-nil only for blinded outputs on the Liquid build
}

// PlainAmount builds a non-confidential Amount.
func PlainAmount(v uint64) Amount {
	return Amount{Value: v, Valid: true}
}

// ConfidentialAmount builds a blinded Amount carrying only a commitment.
func ConfidentialAmount(commitment []byte) Amount {
	c := make([]byte, len(commitment))
	copy(c, commitment)
	return Amount{Valid: false, Commitment: c}
}

// IsConfidential reports whether the amount has no disclosed value.
func (a Amount) IsConfidential() bool {
	return !a.Valid
}

// amountKind discriminates the two on-disk encodings a U-row value can
// take: a plain 8-byte little-endian value, or a length-prefixed
// commitment for the Elements/Liquid variant's blinded outputs.
const (
	amountKindPlain        byte = 0
	amountKindConfidential byte = 1
)

// Encode serializes a for storage in the history CF's U row.
func (a Amount) Encode() []byte {
	if a.IsConfidential() {
		buf := make([]byte, 0, 1+4+len(a.Commitment))
		buf = append(buf, amountKindConfidential)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Commitment)))
		buf = append(buf, a.Commitment...)
		return buf
	}
	buf := make([]byte, 0, 9)
	buf = append(buf, amountKindPlain)
	buf = binary.LittleEndian.AppendUint64(buf, a.Value)
	return buf
}

// DecodeAmount parses an Amount previously produced by Encode.
func DecodeAmount(b []byte) (Amount, error) {
	if len(b) < 1 {
		return Amount{}, fmt.Errorf("wire: empty amount row")
	}
	switch b[0] {
	case amountKindPlain:
		if len(b) < 9 {
			return Amount{}, fmt.Errorf("wire: short plain amount row")
		}
		return PlainAmount(binary.LittleEndian.Uint64(b[1:9])), nil
	case amountKindConfidential:
		if len(b) < 5 {
			return Amount{}, fmt.Errorf("wire: short confidential amount row")
		}
		n := binary.LittleEndian.Uint32(b[1:5])
		if len(b) < int(5+n) {
			return Amount{}, fmt.Errorf("wire: truncated commitment")
		}
		return ConfidentialAmount(b[5 : 5+n]), nil
	default:
		return Amount{}, fmt.Errorf("wire: unknown amount kind %d", b[0])
	}
}
