package wire

import "crypto/sha256"

// ScriptHash is the single-SHA256 digest of a scriptPubKey used to key
// the history and UTXO column families — deliberately a single round,
// unlike chainhash's double-SHA256 block/tx hashing.
type ScriptHash [32]byte

// Bytes returns h's raw bytes.
func (h ScriptHash) Bytes() []byte { return h[:] }

// HashScript computes the ScriptHash of a scriptPubKey.
func HashScript(scriptPubKey []byte) ScriptHash {
	return sha256.Sum256(scriptPubKey)
}
