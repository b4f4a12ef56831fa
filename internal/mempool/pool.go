// Package mempool mirrors the daemon's unconfirmed transaction set: a
// single process-resident, read-mostly structure updated by diffing the
// daemon's raw mempool against what is already held, rather than by
// locally validating and admitting client-submitted transactions.
package mempool

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/daemon"
	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// Entry is one unconfirmed transaction, with the scripthash each of its
// outputs and (non-coinbase) inputs touches cached at admission time so
// removal never needs to re-resolve a prevout that may itself have been
// evicted in the same update.
type Entry struct {
	Tx                 *wire.Transaction
	TxID               chainhash.Hash
	VSize              uint32
	Fee                uint64
	OutputScripthashes []wire.ScriptHash
	InputScripthashes  []wire.ScriptHash // empty for a coinbase-shaped tx
}

// HistoryEntry is one funding or spending event contributed by a
// mempool transaction, matching chainquery.HistoryEntry's shape so the
// query facade can merge the two without field-by-field translation.
type HistoryEntry struct {
	TxID    chainhash.Hash
	Funding bool
	Index   uint32
}

// UTXOEntry is one unspent output created by a mempool transaction.
type UTXOEntry struct {
	Outpoint wire.Outpoint
	Amount   wire.Amount
}

// Spend records which transaction consumes an outpoint while it sits
// unconfirmed.
type Spend struct {
	SpenderTxid chainhash.Hash
	VinIndex    uint32
}

// fetchedTx is a mempool candidate that has passed RPC fetch and parse,
// waiting on admission order (see Update's admission loop).
type fetchedTx struct {
	id   string
	tx   *wire.Transaction
	meta *daemon.MempoolEntry
}

// FeeRateBucket is one entry of the feerate histogram used by fee
// estimators: the lower bound of a sat/vbyte bucket and the cumulative
// vsize of transactions falling in it.
type FeeRateBucket struct {
	FeeRate float64
	VSize   uint64
}

// bucketGrowth is the geometric factor between histogram bucket lower
// bounds (1, 2, 4, 8, … sat/vbyte).
const bucketGrowth = 2.0

// Pool holds all unconfirmed state. A single coarse RWMutex protects
// the whole structure; Update is meant to be driven by one updater
// goroutine, with arbitrary readers concurrent with it.
type Pool struct {
	mu     sync.RWMutex
	store  *store.Store
	client *daemon.Client

	txByID              map[chainhash.Hash]*Entry
	daemonTxids         map[string]chainhash.Hash // RPC txid string -> locally computed TxID
	spends              map[wire.Outpoint]Spend
	historyByScripthash map[wire.ScriptHash][]HistoryEntry
	histogram           []FeeRateBucket
}

// New builds an empty Pool. s is consulted to resolve a mempool
// transaction's confirmed prevouts; client drives Update.
func New(s *store.Store, client *daemon.Client) *Pool {
	return &Pool{
		store:               s,
		client:              client,
		txByID:              make(map[chainhash.Hash]*Entry),
		daemonTxids:         make(map[string]chainhash.Hash),
		spends:              make(map[wire.Outpoint]Spend),
		historyByScripthash: make(map[wire.ScriptHash][]HistoryEntry),
	}
}

// Update diffs the daemon's current raw mempool against what Pool
// already holds, removing dropped transactions and admitting new ones,
// then rebuilds the feerate histogram. It is not safe to call Update
// concurrently with itself.
func (p *Pool) Update(ctx context.Context) error {
	current, err := p.client.GetRawMempool(ctx)
	if err != nil {
		return err
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var removedIDs []string
	for id, hash := range p.daemonTxids {
		if _, ok := currentSet[id]; !ok {
			p.removeLocked(hash)
			removedIDs = append(removedIDs, id)
		}
	}
	for _, id := range removedIDs {
		delete(p.daemonTxids, id)
	}

	var added []string
	for _, id := range current {
		if _, ok := p.daemonTxids[id]; !ok {
			added = append(added, id)
		}
	}

	var fetched []fetchedTx
	for _, id := range added {
		raw, err := p.client.GetRawTransaction(ctx, id)
		if err != nil {
			// Likely evicted between getrawmempool and getrawtransaction;
			// the next tick's diff will simply no longer see it.
			applog.Mempool.Debug().Str("txid", id).Err(err).Msg("skipping mempool tx, fetch failed")
			continue
		}
		tx, err := wire.ParseTransactionBytes(raw)
		if err != nil {
			return errs.Protocolf("mempool.Update", "parse tx %s: %w", id, err)
		}
		meta, err := p.client.GetMempoolEntry(ctx, id)
		if err != nil {
			applog.Mempool.Debug().Str("txid", id).Err(err).Msg("skipping mempool tx, entry lookup failed")
			continue
		}
		fetched = append(fetched, fetchedTx{id: id, tx: tx, meta: meta})
	}

	// A child spending another transaction from this same batch can sort
	// before its parent in the daemon's mempool listing, so admission
	// runs in repeated passes: each pass admits whatever now resolves,
	// until a full pass makes no progress. What's left at that point has
	// a genuinely unresolvable prevout (e.g. its parent was itself
	// dropped by a fetch failure above) and is skipped rather than
	// failing the whole update.
	for len(fetched) > 0 {
		var remaining []fetchedTx
		progressed := false
		for _, f := range fetched {
			if err := p.addLocked(f.tx, f.meta); err != nil {
				if errors.Is(err, errs.ErrConsistency) {
					remaining = append(remaining, f)
					continue
				}
				return err
			}
			p.daemonTxids[f.id] = f.tx.TxID()
			progressed = true
		}
		if !progressed {
			for _, f := range remaining {
				applog.Mempool.Debug().Str("txid", f.id).Msg("dropping mempool tx with unresolved prevout")
			}
			break
		}
		fetched = remaining
	}

	p.rebuildHistogramLocked()
	applog.Mempool.Debug().Int("size", len(p.txByID)).Int("added", len(added)).Int("removed", len(removedIDs)).Msg("mempool updated")
	return nil
}

// addLocked admits tx into the pool, resolving each non-coinbase
// input's prevout via other mempool transactions first, then the
// confirmed txstore.
func (p *Pool) addLocked(tx *wire.Transaction, meta *daemon.MempoolEntry) error {
	hash := tx.TxID()
	entry := &Entry{Tx: tx, TxID: hash, VSize: meta.VSize, Fee: meta.Fee}
	entry.OutputScripthashes = make([]wire.ScriptHash, len(tx.Outputs))

	for vout, out := range tx.Outputs {
		sh := wire.HashScript(out.Script)
		entry.OutputScripthashes[vout] = sh
		p.historyByScripthash[sh] = append(p.historyByScripthash[sh], HistoryEntry{TxID: hash, Funding: true, Index: uint32(vout)})
	}

	p.txByID[hash] = entry

	if tx.IsCoinbase() {
		return nil
	}
	entry.InputScripthashes = make([]wire.ScriptHash, len(tx.Inputs))
	for vin, in := range tx.Inputs {
		script, _, err := p.resolvePrevoutLocked(in.PrevOut)
		if err != nil {
			p.removeLocked(hash) // undo the rows added so far; a later pass may retry
			return err
		}
		sh := wire.HashScript(script)
		entry.InputScripthashes[vin] = sh
		p.historyByScripthash[sh] = append(p.historyByScripthash[sh], HistoryEntry{TxID: hash, Funding: false, Index: uint32(vin)})
		p.spends[in.PrevOut] = Spend{SpenderTxid: hash, VinIndex: uint32(vin)}
	}
	return nil
}

// resolvePrevoutLocked finds the scriptPubKey and amount an outpoint
// refers to, consulting other mempool transactions before falling back
// to the confirmed txstore.
func (p *Pool) resolvePrevoutLocked(op wire.Outpoint) ([]byte, wire.Amount, error) {
	if parent, ok := p.txByID[op.TxID]; ok {
		if int(op.Vout) >= len(parent.Tx.Outputs) {
			return nil, wire.Amount{}, errs.Consistencyf("mempool.resolvePrevout", "vout %d out of range for mempool tx %s", op.Vout, op.TxID)
		}
		out := parent.Tx.Outputs[op.Vout]
		return out.Script, out.Amount, nil
	}

	blockhash, err := p.store.Txstore.Get(store.TxKey(op.TxID.Bytes()))
	if err == store.ErrNotFound {
		return nil, wire.Amount{}, errs.Consistencyf("mempool.resolvePrevout", "prevout %s not found in mempool or confirmed chain", op)
	}
	if err != nil {
		return nil, wire.Amount{}, errs.Storagef("mempool.resolvePrevout", "read T row: %w", err)
	}
	raw, err := p.store.Txstore.Get(store.BlockKey(blockhash))
	if err != nil {
		return nil, wire.Amount{}, errs.Storagef("mempool.resolvePrevout", "read B row: %w", err)
	}
	blk, err := wire.ParseBlockBytes(raw)
	if err != nil {
		return nil, wire.Amount{}, errs.Protocolf("mempool.resolvePrevout", "reparse block: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.TxID() != op.TxID {
			continue
		}
		if int(op.Vout) >= len(t.Outputs) {
			return nil, wire.Amount{}, errs.Consistencyf("mempool.resolvePrevout", "vout %d out of range for confirmed tx %s", op.Vout, op.TxID)
		}
		return t.Outputs[op.Vout].Script, t.Outputs[op.Vout].Amount, nil
	}
	return nil, wire.Amount{}, errs.Consistencyf("mempool.resolvePrevout", "tx %s not found in its own recorded block", op.TxID)
}

// removeLocked evicts hash, undoing every history entry and spend
// record it contributed. A no-op if hash is unknown.
func (p *Pool) removeLocked(hash chainhash.Hash) {
	entry, ok := p.txByID[hash]
	if !ok {
		return
	}
	for vout := range entry.Tx.Outputs {
		sh := entry.OutputScripthashes[vout]
		p.historyByScripthash[sh] = removeHistoryEntry(p.historyByScripthash[sh], hash, true, uint32(vout))
		if len(p.historyByScripthash[sh]) == 0 {
			delete(p.historyByScripthash, sh)
		}
	}
	if !entry.Tx.IsCoinbase() {
		for vin, in := range entry.Tx.Inputs {
			sh := entry.InputScripthashes[vin]
			p.historyByScripthash[sh] = removeHistoryEntry(p.historyByScripthash[sh], hash, false, uint32(vin))
			if len(p.historyByScripthash[sh]) == 0 {
				delete(p.historyByScripthash, sh)
			}
			delete(p.spends, in.PrevOut)
		}
	}
	delete(p.txByID, hash)
}

func removeHistoryEntry(entries []HistoryEntry, txid chainhash.Hash, funding bool, index uint32) []HistoryEntry {
	for i, e := range entries {
		if e.TxID == txid && e.Funding == funding && e.Index == index {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// rebuildHistogramLocked recomputes the feerate histogram from the
// current pool contents.
func (p *Pool) rebuildHistogramLocked() {
	totals := make(map[float64]uint64)
	for _, e := range p.txByID {
		if e.VSize == 0 {
			continue
		}
		feerate := float64(e.Fee) / float64(e.VSize)
		bound := bucketLowerBound(feerate)
		totals[bound] += uint64(e.VSize)
	}

	buckets := make([]FeeRateBucket, 0, len(totals))
	for bound, vsize := range totals {
		buckets = append(buckets, FeeRateBucket{FeeRate: bound, VSize: vsize})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].FeeRate < buckets[j].FeeRate })
	p.histogram = buckets
}

// bucketLowerBound rounds feerate down to the nearest power-of-two
// sat/vbyte bucket boundary; feerates below 1 fall in the 1 bucket.
func bucketLowerBound(feerate float64) float64 {
	bound := 1.0
	for bound*bucketGrowth <= feerate {
		bound *= bucketGrowth
	}
	return bound
}

// Has reports whether txid is currently in the pool.
func (p *Pool) Has(txid chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txByID[txid]
	return ok
}

// Get returns the transaction for txid, if present.
func (p *Pool) Get(txid chainhash.Hash) (*wire.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.txByID[txid]
	if !ok {
		return nil, false
	}
	return e.Tx, true
}

// Count returns the number of transactions currently held.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txByID)
}

// History returns scripthash's unconfirmed history entries, in
// insertion order.
func (p *Pool) History(sh wire.ScriptHash) []HistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := p.historyByScripthash[sh]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// UTXO returns scripthash's unconfirmed unspent outputs: funding
// entries whose outpoint is not itself spent by another mempool tx.
func (p *Pool) UTXO(sh wire.ScriptHash) []UTXOEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []UTXOEntry
	for _, e := range p.historyByScripthash[sh] {
		if !e.Funding {
			continue
		}
		op := wire.Outpoint{TxID: e.TxID, Vout: e.Index}
		if _, spent := p.spends[op]; spent {
			continue
		}
		tx := p.txByID[e.TxID].Tx
		out = append(out, UTXOEntry{Outpoint: op, Amount: tx.Outputs[e.Index].Amount})
	}
	return out
}

// IsSpent reports whether op is consumed by some transaction currently
// in the pool.
func (p *Pool) IsSpent(op wire.Outpoint) (Spend, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.spends[op]
	return s, ok
}

// Histogram returns the current feerate histogram, ascending by
// feerate bucket.
func (p *Pool) Histogram() []FeeRateBucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FeeRateBucket, len(p.histogram))
	copy(out, p.histogram)
	return out
}
