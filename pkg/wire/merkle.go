package wire

import "github.com/syscoin-index/sysindex/pkg/chainhash"

// MerkleRoot computes the Bitcoin-style merkle root over txids: pairs are
// concatenated and double-hashed level by level, duplicating the last
// node of a level when its count is odd.
func MerkleRoot(txids []chainhash.Hash) chainhash.Hash {
	if len(txids) == 0 {
		return chainhash.Hash{}
	}
	level := make([]chainhash.Hash, len(txids))
	copy(level, txids)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			next[i] = chainhash.Concat(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}
