package blocksource

import (
	"context"
	"sync"

	"github.com/syscoin-index/sysindex/internal/daemon"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
)

// DefaultConcurrency is the default number of in-flight getblock calls
// an RPCSource's Prefetch makes to the daemon at once.
const DefaultConcurrency = 4

// RPCSource fetches block bytes one at a time over the daemon's JSON-RPC
// interface, for use when there's no local blk*.dat index to read
// (pruned/remote daemon, or jsonrpc_import forced by the operator).
type RPCSource struct {
	client *daemon.Client
}

// NewRPC wraps an already-constructed daemon client.
func NewRPC(client *daemon.Client) *RPCSource {
	return &RPCSource{client: client}
}

// Fetch retrieves the raw bytes for a single block by hash.
func (s *RPCSource) Fetch(ctx context.Context, hash chainhash.Hash, _ uint32) (*Block, error) {
	raw, err := s.client.GetBlockRaw(ctx, hash.String())
	if err != nil {
		return nil, err
	}
	return &Block{Hash: hash, Raw: raw}, nil
}

func (s *RPCSource) Close() error { return nil }

// FetchResult pairs a requested hash's position with its outcome, so a
// consumer can process results strictly in request order even though
// they were fetched out of order by a worker pool.
type FetchResult struct {
	Index int
	Block *Block
	Err   error
}

// Prefetch fetches hashes with a bounded worker pool (concurrency
// in-flight RPC calls at a time) and delivers results, in the same
// order as hashes, on the returned channel. The channel is closed once
// every result has been delivered or ctx is cancelled.
func (s *RPCSource) Prefetch(ctx context.Context, hashes []chainhash.Hash, heights []uint32, concurrency int) <-chan FetchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	out := make(chan FetchResult, len(hashes))
	jobs := make(chan int)

	var wg sync.WaitGroup
	results := make([]FetchResult, len(hashes))

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				height := uint32(0)
				if idx < len(heights) {
					height = heights[idx]
				}
				blk, err := s.Fetch(ctx, hashes[idx], height)
				results[idx] = FetchResult{Index: idx, Block: blk, Err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range hashes {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		defer close(out)
		for i := range results {
			r := results[i]
			r.Index = i
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
