// Package blocksource supplies an ordered stream of (blockhash, raw
// bytes) pairs to the indexer, either read in bulk from the daemon's own
// blk*.dat files or fetched one at a time over RPC.
package blocksource

import (
	"context"
	"errors"

	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// Block is one raw block paired with the hash the indexer already knows
// for it (so callers need not re-hash the header to identify a block).
type Block struct {
	Hash chainhash.Hash
	Raw  []byte
}

// ErrNotIndexed is returned by BulkSource.Fetch when a requested hash
// has no matching record in the scanned blk*.dat files. The indexer does
// not retry such a block over RPC: the error ends the txstore phase.
var ErrNotIndexed = errors.New("blocksource: block not present in bulk index")

// Source fetches raw block bytes by hash. The indexer drives iteration
// itself (it already has the canonical header sequence from its own
// header list); a Source's only job is turning a hash into bytes.
type Source interface {
	Fetch(ctx context.Context, hash chainhash.Hash, height uint32) (*Block, error)
	Close() error
}

// ChooseMode decides whether sysindexd should bulk-read the daemon's
// blk*.dat files or fall back to one RPC call per block, per
// SPEC_FULL.md §4.D's selection policy: bulk only applies to an empty
// store that hasn't been told to force RPC import.
func ChooseMode(storeIsEmpty bool, forceJSONRPCImport bool) Mode {
	if storeIsEmpty && !forceJSONRPCImport {
		return ModeBulk
	}
	return ModeRPC
}

// Mode selects which Source implementation the indexer should build.
type Mode int

const (
	ModeBulk Mode = iota
	ModeRPC
)

func (m Mode) String() string {
	switch m {
	case ModeBulk:
		return "bulk"
	case ModeRPC:
		return "rpc"
	default:
		return "unknown"
	}
}
