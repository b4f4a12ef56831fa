// Package query is the confirmed+mempool merge facade callers use: it
// composes chainquery and mempool behind one surface, presenting
// unconfirmed results in front of confirmed ones and deduping by txid,
// per SPEC_FULL.md §4.H.
package query

import (
	"github.com/syscoin-index/sysindex/internal/chainquery"
	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/mempool"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// maxTipRecheckAttempts bounds how many times a call retries after
// observing the header list's tip move mid-read, per SPEC_FULL.md §5's
// "recheck tip, re-query if changed" mitigation for the lack of a
// global snapshot across Chain query and Mempool.
const maxTipRecheckAttempts = 3

// Facade merges a ChainQuery and a Pool behind one read-only surface.
type Facade struct {
	chain   *chainquery.ChainQuery
	pool    *mempool.Pool
	headers *headerlist.List
}

// New builds a Facade over chain, pool, and the shared header list.
func New(chain *chainquery.ChainQuery, pool *mempool.Pool, headers *headerlist.List) *Facade {
	return &Facade{chain: chain, pool: pool, headers: headers}
}

// TxResult is a transaction as seen by the facade, confirmed or not.
type TxResult struct {
	Tx        *wire.Transaction
	Confirmed bool
	Block     chainquery.BlockId // zero value when Confirmed is false
}

// TxByID looks up txid, preferring the mempool (unconfirmed is
// considered "highest") over the confirmed chain.
func (f *Facade) TxByID(txid chainhash.Hash) (TxResult, bool, error) {
	for attempt := 0; attempt < maxTipRecheckAttempts; attempt++ {
		tip := f.headers.Tip()

		if tx, ok := f.pool.Get(txid); ok {
			return TxResult{Tx: tx, Confirmed: false}, true, nil
		}

		tx, block, ok, err := f.chain.TxByID(txid)
		if err != nil {
			return TxResult{}, false, err
		}
		if f.headers.Tip() != tip {
			continue
		}
		if !ok {
			return TxResult{}, false, nil
		}
		return TxResult{Tx: tx, Confirmed: true, Block: block}, true, nil
	}
	return TxResult{}, false, errs.Consistencyf("query.TxByID", "tip kept moving across %d attempts", maxTipRecheckAttempts)
}

// HistoryEntry is one funding or spending event for a scripthash,
// confirmed or not.
type HistoryEntry struct {
	TxID      chainhash.Hash
	Funding   bool
	Index     uint32
	Confirmed bool
	Block     chainquery.BlockId // zero value when Confirmed is false
}

// History returns scripthash's history, unconfirmed entries first, then
// confirmed entries newest-first, deduped by txid. lastSeenTxid paginates
// the confirmed portion only: mempool entries are included only on the
// first page (lastSeenTxid nil), and limit applies to the merged list.
func (f *Facade) History(scripthash []byte, lastSeenTxid *chainhash.Hash, limit int) ([]HistoryEntry, error) {
	var sh wire.ScriptHash
	copy(sh[:], scripthash)

	for attempt := 0; attempt < maxTipRecheckAttempts; attempt++ {
		tip := f.headers.Tip()

		var out []HistoryEntry
		seen := make(map[chainhash.Hash]bool)
		if lastSeenTxid == nil {
			for _, e := range f.pool.History(sh) {
				out = append(out, HistoryEntry{TxID: e.TxID, Funding: e.Funding, Index: e.Index})
				seen[e.TxID] = true
			}
		}

		confirmed, err := f.chain.History(scripthash, lastSeenTxid, 0)
		if err != nil {
			return nil, err
		}
		if f.headers.Tip() != tip {
			continue
		}

		for _, e := range confirmed {
			if seen[e.TxID] {
				// Already surfaced via the mempool; the pool's Update
				// hasn't yet caught up with this tx's confirmation.
				continue
			}
			out = append(out, HistoryEntry{TxID: e.TxID, Funding: e.Funding, Index: e.Index, Confirmed: true, Block: e.Block})
		}

		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}
	return nil, errs.Consistencyf("query.History", "tip kept moving across %d attempts", maxTipRecheckAttempts)
}

// UTXOEntry is one unspent output for a scripthash, confirmed or not.
type UTXOEntry struct {
	Outpoint  wire.Outpoint
	Amount    wire.Amount
	Confirmed bool
	Block     chainquery.BlockId // zero value when Confirmed is false
}

// UTXO returns scripthash's unspent outputs: mempool-created outputs
// not yet spent, plus confirmed outputs not spent by any confirmed or
// mempool transaction.
func (f *Facade) UTXO(scripthash []byte) ([]UTXOEntry, error) {
	var sh wire.ScriptHash
	copy(sh[:], scripthash)

	for attempt := 0; attempt < maxTipRecheckAttempts; attempt++ {
		tip := f.headers.Tip()

		var out []UTXOEntry
		for _, u := range f.pool.UTXO(sh) {
			out = append(out, UTXOEntry{Outpoint: u.Outpoint, Amount: u.Amount})
		}

		confirmed, err := f.chain.UTXO(scripthash)
		if err != nil {
			return nil, err
		}
		if f.headers.Tip() != tip {
			continue
		}

		for _, u := range confirmed {
			if _, spent := f.pool.IsSpent(u.Outpoint); spent {
				continue
			}
			out = append(out, UTXOEntry{Outpoint: u.Outpoint, Amount: u.Amount, Confirmed: true, Block: u.Block})
		}
		return out, nil
	}
	return nil, errs.Consistencyf("query.UTXO", "tip kept moving across %d attempts", maxTipRecheckAttempts)
}

// Stats summarizes a scripthash's activity, confirmed totals plus the
// count of transactions still pending in the mempool.
type Stats struct {
	chainquery.Stats
	UnconfirmedTxCount uint32
}

// Stats merges the confirmed chain totals with the mempool's pending
// transaction count for scripthash.
func (f *Facade) Stats(scripthash []byte) (Stats, error) {
	var sh wire.ScriptHash
	copy(sh[:], scripthash)

	confirmed, err := f.chain.Stats(scripthash)
	if err != nil {
		return Stats{}, err
	}

	seen := make(map[chainhash.Hash]bool)
	for _, e := range f.pool.History(sh) {
		seen[e.TxID] = true
	}
	return Stats{Stats: confirmed, UnconfirmedTxCount: uint32(len(seen))}, nil
}

// Tip returns the hash of the current confirmed chain tip.
func (f *Facade) Tip() chainhash.Hash {
	return f.headers.Tip()
}
