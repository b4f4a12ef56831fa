package indexer

import (
	"context"

	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/daemon"
	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/metrics"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// Sync fetches the daemon's current best chain of headers, reconciles
// it against the local header list (applying any reorg), and runs both
// indexing phases over whatever is newly canonical but not yet fully
// indexed. It is meant to be called once at startup and once per poll
// tick thereafter (SPEC_FULL.md §4.E "Reorg handling").
func (ix *Indexer) Sync(ctx context.Context, client *daemon.Client) error {
	raw, err := fetchHeaderChain(ctx, client, ix.headers)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		oldLen := ix.headers.Len()
		entries, err := ix.headers.Order(raw)
		if err != nil {
			return errs.New(errs.Consistency, "indexer.Sync", err)
		}
		reorged := oldLen > 0 && int(entries[0].Height) < oldLen
		if err := ix.headers.Apply(entries); err != nil {
			return errs.New(errs.Consistency, "indexer.Sync", err)
		}
		if reorged {
			metrics.ReorgsTotal.Inc()
		}
		applog.Indexer.Info().Int("new_headers", len(entries)).Uint32("tip_height", uint32(ix.headers.Len()-1)).Msg("applied header update")
	}

	pending, err := ix.pendingTxstore()
	if err != nil {
		return err
	}
	if err := ix.RunTxstorePhase(ctx, pending); err != nil {
		return err
	}

	pendingHistory, err := ix.pendingHistory()
	if err != nil {
		return err
	}
	return ix.RunHistoryPhase(pendingHistory)
}

// fetchHeaderChain retrieves the segment of headers the local header
// list needs to catch up to the daemon's current best chain. When the
// daemon's chain has reorganized past our tip, it first walks backward
// from the common height to find the fork point (SPEC_FULL.md §4.E
// "Reorg handling", step 2), then fetches every header from the fork
// forward — the returned segment is always suitable for headerlist.Order
// as-is, whether or not a reorg occurred.
func fetchHeaderChain(ctx context.Context, client *daemon.Client, headers *headerlist.List) ([]wire.Header, error) {
	info, err := client.GetBlockchainInfo(ctx)
	if err != nil {
		return nil, err
	}

	startHeight := uint32(0)
	if headers.Len() > 0 {
		forkHeight, err := findForkHeight(ctx, client, headers, info.Headers)
		if err != nil {
			return nil, err
		}
		startHeight = uint32(forkHeight + 1)
	}
	if info.Headers < startHeight {
		return nil, nil // daemon is behind us somehow; nothing to fetch
	}

	out := make([]wire.Header, 0, int(info.Headers)-int(startHeight)+1)
	for h := startHeight; h <= info.Headers; h++ {
		hash, err := client.GetBlockHash(ctx, h)
		if err != nil {
			return nil, err
		}
		hdr, _, err := client.GetBlockHeader(ctx, hash)
		if err != nil {
			return nil, err
		}
		out = append(out, *hdr)
	}
	return out, nil
}

// findForkHeight returns the highest height at which the local header
// list and the daemon's current chain agree, or -1 if they disagree all
// the way back to genesis. Called only when the local list is non-empty.
func findForkHeight(ctx context.Context, client *daemon.Client, headers *headerlist.List, daemonTipHeight uint32) (int64, error) {
	top := int64(headers.Len() - 1)
	if int64(daemonTipHeight) < top {
		top = int64(daemonTipHeight)
	}
	for h := top; h >= 0; h-- {
		entry, ok := headers.ByHeight(uint32(h))
		if !ok {
			continue
		}
		daemonHash, err := client.GetBlockHash(ctx, uint32(h))
		if err != nil {
			return 0, err
		}
		if daemonHash == entry.Hash.String() {
			return h, nil
		}
	}
	return -1, nil
}

// pendingTxstore returns every header-list entry whose M marker has not
// yet been written.
func (ix *Indexer) pendingTxstore() ([]headerlist.Entry, error) {
	var pending []headerlist.Entry
	for _, e := range ix.headers.Snapshot() {
		marked, err := ix.store.Txstore.Has(store.Phase1DoneKey(e.Hash.Bytes()))
		if err != nil {
			return nil, errs.Storagef("indexer.pendingTxstore", "%w", err)
		}
		if !marked {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// pendingHistory returns every header-list entry whose D marker has not
// yet been written (only meaningful once phase 1 has run for it).
func (ix *Indexer) pendingHistory() ([]headerlist.Entry, error) {
	var pending []headerlist.Entry
	for _, e := range ix.headers.Snapshot() {
		done, err := ix.store.History.Has(store.Phase2DoneKey(e.Hash.Bytes()))
		if err != nil {
			return nil, errs.Storagef("indexer.pendingHistory", "%w", err)
		}
		if !done {
			pending = append(pending, e)
		}
	}
	return pending, nil
}
