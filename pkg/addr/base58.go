package addr

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// checksumLen is the length, in bytes, of the base58check trailer.
const checksumLen = 4

// base58CheckEncode encodes version||payload with a double-SHA256
// checksum trailer, matching the legacy Bitcoin address encoding.
func base58CheckEncode(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload)+checksumLen)
	body = append(body, version)
	body = append(body, payload...)
	body = append(body, checksum(body)...)
	return base58.Encode(body)
}

// base58CheckDecode decodes a base58check string, verifying the
// checksum trailer, and returns the version byte and payload.
func base58CheckDecode(s string) (version byte, payload []byte, err error) {
	body, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("addr: base58 decode: %w", err)
	}
	if len(body) < 1+checksumLen {
		return 0, nil, fmt.Errorf("addr: base58 payload too short")
	}
	data, sum := body[:len(body)-checksumLen], body[len(body)-checksumLen:]
	want := checksum(data)
	for i := range want {
		if want[i] != sum[i] {
			return 0, nil, fmt.Errorf("addr: base58check checksum mismatch")
		}
	}
	return data[0], data[1:], nil
}

func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}
