// Package wire implements the Bitcoin-style consensus binary encoding for
// block headers, transactions, and blk*.dat block-file framing.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// AppendVarInt appends a Bitcoin CompactSize-encoded integer to buf.
func AppendVarInt(buf []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(buf, byte(n))
	case n <= 0xffff:
		buf = append(buf, 0xfd)
		return binary.LittleEndian.AppendUint16(buf, uint16(n))
	case n <= 0xffffffff:
		buf = append(buf, 0xfe)
		return binary.LittleEndian.AppendUint32(buf, uint32(n))
	default:
		buf = append(buf, 0xff)
		return binary.LittleEndian.AppendUint64(buf, n)
	}
}

// ReadVarInt reads a Bitcoin CompactSize-encoded integer from r.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, fmt.Errorf("wire: read varint prefix: %w", err)
	}
	switch prefix[0] {
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("wire: read varint u16: %w", err)
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case 0xfe:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("wire: read varint u32: %w", err)
		}
		return uint64(binary.LittleEndian.Uint32(b[:])), nil
	case 0xff:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("wire: read varint u64: %w", err)
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return uint64(prefix[0]), nil
	}
}

// VarIntSize returns the number of bytes AppendVarInt would add for n.
func VarIntSize(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
