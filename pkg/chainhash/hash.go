// Package chainhash implements the 32-byte double-SHA256 hash type used
// throughout the indexer for block and transaction identifiers.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Size is the length in bytes of a Hash.
const Size = 32

// Hash is a double-SHA256 digest, stored internally in the same
// byte order it is produced by the hash function (not the
// reversed, human-display order Bitcoin-style block explorers use).
type Hash [Size]byte

// Sum returns the double-SHA256 of data.
func Sum(data []byte) Hash {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String returns the hex encoding of the hash in its raw byte order.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// FromBytes builds a Hash from a byte slice, which must be exactly Size bytes.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("chainhash: invalid length %d, want %d", len(b), Size)
	}
	copy(h[:], b)
	return h, nil
}

// FromHex decodes a hex string into a Hash.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("chainhash: decode hex: %w", err)
	}
	return FromBytes(b)
}

// MustFromHex is like FromHex but panics on error; intended for constants
// and tests only.
func MustFromHex(s string) Hash {
	h, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hash from a hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := FromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// Concat returns Sum(a || b), the building block for Merkle tree levels.
func Concat(a, b Hash) Hash {
	var buf [2 * Size]byte
	copy(buf[:Size], a[:])
	copy(buf[Size:], b[:])
	return Sum(buf[:])
}
