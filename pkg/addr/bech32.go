// Package addr implements Bitcoin-style address encoding and decoding:
// base58check legacy addresses (P2PKH/P2SH) and bech32/bech32m segwit
// addresses, network-aware across the Syscoin mainnet/testnet/regtest
// triple and the optional Liquid/Liquid-regtest pair.
package addr

import (
	"fmt"
	"strings"
)

// bech32Charset is the BIP-173 data alphabet.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32CharsetRev [128]int8

func init() {
	for i := range bech32CharsetRev {
		bech32CharsetRev[i] = -1
	}
	for i, c := range bech32Charset {
		bech32CharsetRev[c] = int8(i)
	}
}

// variant selects the checksum constant: the original BIP-173 bech32
// (used for witness v0) or BIP-350 bech32m (used for witness v1+).
type variant uint32

const (
	variantBech32  variant = 1
	variantBech32m variant = 0x2bc830a3
)

func checksumVariantFor(witnessVersion int) variant {
	if witnessVersion == 0 {
		return variantBech32
	}
	return variantBech32m
}

func bech32Encode(hrp string, data []byte, v variant) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("addr: empty HRP")
	}
	for _, c := range hrp {
		if c < 33 || c > 126 {
			return "", fmt.Errorf("addr: invalid HRP character %q", c)
		}
	}

	conv, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("addr: convert bits: %w", err)
	}

	chk := createChecksum(hrp, conv, v)

	var sb strings.Builder
	sb.Grow(len(hrp) + 1 + len(conv) + 6)
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range conv {
		sb.WriteByte(bech32Charset[b])
	}
	for _, b := range chk {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// bech32Decode decodes a bech32/bech32m string, returning the HRP, the
// 8-bit data, and which variant's checksum validated.
func bech32Decode(s string) (hrp string, data []byte, v variant, err error) {
	if len(s) == 0 {
		return "", nil, 0, fmt.Errorf("addr: empty string")
	}

	hasUpper, hasLower := false, false
	for _, c := range s {
		if c >= 'A' && c <= 'Z' {
			hasUpper = true
		}
		if c >= 'a' && c <= 'z' {
			hasLower = true
		}
	}
	if hasUpper && hasLower {
		return "", nil, 0, fmt.Errorf("addr: mixed case")
	}
	s = strings.ToLower(s)

	sepIdx := strings.LastIndex(s, "1")
	if sepIdx < 1 {
		return "", nil, 0, fmt.Errorf("addr: missing separator")
	}
	if sepIdx+7 > len(s) {
		return "", nil, 0, fmt.Errorf("addr: too short")
	}

	hrp = s[:sepIdx]
	dataStr := s[sepIdx+1:]

	data5 := make([]byte, len(dataStr))
	for i, c := range dataStr {
		if c > 127 {
			return "", nil, 0, fmt.Errorf("addr: invalid character %q", c)
		}
		val := bech32CharsetRev[c]
		if val < 0 {
			return "", nil, 0, fmt.Errorf("addr: invalid character %q", c)
		}
		data5[i] = byte(val)
	}

	switch {
	case verifyChecksum(hrp, data5, variantBech32):
		v = variantBech32
	case verifyChecksum(hrp, data5, variantBech32m):
		v = variantBech32m
	default:
		return "", nil, 0, fmt.Errorf("addr: invalid checksum")
	}

	data5 = data5[:len(data5)-6]
	data8, err := convertBits(data5, 5, 8, false)
	if err != nil {
		return "", nil, 0, fmt.Errorf("addr: convert bits: %w", err)
	}
	return hrp, data8, v, nil
}

func polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, val := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(val)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	ret := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		ret = append(ret, byte(c>>5))
	}
	ret = append(ret, 0)
	for _, c := range hrp {
		ret = append(ret, byte(c&31))
	}
	return ret
}

func createChecksum(hrp string, data []byte, v variant) []byte {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ uint32(v)
	ret := make([]byte, 6)
	for i := 0; i < 6; i++ {
		ret[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return ret
}

func verifyChecksum(hrp string, data []byte, v variant) bool {
	return polymod(append(hrpExpand(hrp), data...)) == uint32(v)
}

// convertBits regroups data between bit widths (e.g. 8-bit bytes and
// 5-bit bech32 symbols).
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	maxv := uint32((1 << toBits) - 1)
	var ret []byte

	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte: %d", b)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else {
		if bits >= fromBits {
			return nil, fmt.Errorf("non-zero padding")
		}
		if (acc<<(toBits-bits))&maxv != 0 {
			return nil, fmt.Errorf("non-zero padding")
		}
	}

	return ret, nil
}
