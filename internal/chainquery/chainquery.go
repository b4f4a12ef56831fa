// Package chainquery is a pure read path over the Store and header
// list: the confirmed-chain half of the Query facade, grounded on
// SPEC_FULL.md §4.F.
package chainquery

import (
	"encoding/binary"

	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// BlockId identifies the block a row belongs to, carried alongside query
// results so callers can cross-check canonicity themselves if needed.
type BlockId struct {
	Height uint32
	Hash   chainhash.Hash
	Time   uint32
}

// HistoryEntry is one funding or spending event for a scripthash.
type HistoryEntry struct {
	TxID    chainhash.Hash
	Block   BlockId
	Funding bool
	Index   uint32
}

// UTXOEntry is one unspent output for a scripthash.
type UTXOEntry struct {
	Outpoint wire.Outpoint
	Amount   wire.Amount
	Block    BlockId
}

// Stats summarizes a scripthash's confirmed activity.
type Stats struct {
	TxCount    uint32
	FundedSats uint64
	SpentSats  uint64
}

// ChainQuery answers read-only queries against the confirmed chain.
type ChainQuery struct {
	store   *store.Store
	headers *headerlist.List
}

// New builds a ChainQuery over s and headers.
func New(s *store.Store, headers *headerlist.List) *ChainQuery {
	return &ChainQuery{store: s, headers: headers}
}

// blockIdFor resolves blockhash's BlockId through the in-memory header
// list (height and header time come from the list's entry, not from the
// B row), and reports whether blockhash is still canonical at that
// height — every
// read in this package treats a "no longer canonical" row as absent,
// per SPEC_FULL.md §4.F.
func (q *ChainQuery) blockIdFor(blockhash []byte) (BlockId, bool, error) {
	var hash chainhash.Hash
	copy(hash[:], blockhash)

	entry, ok := q.headers.ByHash(hash)
	if !ok {
		return BlockId{}, false, nil
	}
	if !q.headers.IsCanonicalAt(entry.Height, hash) {
		return BlockId{}, false, nil
	}
	return BlockId{Height: entry.Height, Hash: hash, Time: entry.Header.Time}, true, nil
}

// TxByID looks up txid via the T row, then the B row, returning the
// decoded transaction and its BlockId. ok is false for an unknown txid
// or one whose containing block is no longer on the best chain.
func (q *ChainQuery) TxByID(txid chainhash.Hash) (tx *wire.Transaction, block BlockId, ok bool, err error) {
	blockhash, getErr := q.store.Txstore.Get(store.TxKey(txid.Bytes()))
	if getErr == store.ErrNotFound {
		return nil, BlockId{}, false, nil
	}
	if getErr != nil {
		return nil, BlockId{}, false, errs.Storagef("chainquery.TxByID", "read T row: %w", getErr)
	}

	block, canonical, err := q.blockIdFor(blockhash)
	if err != nil {
		return nil, BlockId{}, false, err
	}
	if !canonical {
		return nil, BlockId{}, false, nil
	}

	raw, err := q.store.Txstore.Get(store.BlockKey(blockhash))
	if err != nil {
		return nil, BlockId{}, false, errs.Storagef("chainquery.TxByID", "read B row: %w", err)
	}
	blk, err := wire.ParseBlockBytes(raw)
	if err != nil {
		return nil, BlockId{}, false, errs.Protocolf("chainquery.TxByID", "reparse block: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.TxID() == txid {
			return t, block, true, nil
		}
	}
	return nil, BlockId{}, false, nil
}

// History returns scripthash's history, descending by height, paginated
// by lastSeenTxid. limit <= 0 means no limit. Within one height, rows
// come in descending H-key order (txid, then tag, then index), not in
// the order the transactions appear in the block.
func (q *ChainQuery) History(scripthash []byte, lastSeenTxid *chainhash.Hash, limit int) ([]HistoryEntry, error) {
	var rows []HistoryEntry
	err := q.store.History.ForEach(store.HistoryPrefix(scripthash), func(key, _ []byte) error {
		entry, ok, perr := q.decodeHistoryKey(key)
		if perr != nil {
			return perr
		}
		if !ok {
			return nil // row's block is no longer canonical; skip
		}
		rows = append(rows, entry)
		return nil
	})
	if err != nil {
		return nil, errs.Storagef("chainquery.History", "%w", err)
	}

	// Keys are stored in ascending height order (big-endian height);
	// present newest-first as the spec requires.
	reverse(rows)

	if lastSeenTxid != nil {
		rows = skipUntilAfter(rows, *lastSeenTxid)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// decodeHistoryKey parses an H-row key (scripthash already stripped by
// the prefix scan: height ‖ txid ‖ tag ‖ index). The key itself carries
// only the height the row was written at, not the blockhash — a reorg
// can leave a stale row behind at a height now occupied by a different
// block, with a different txid, so the only reliable cross-check is to
// follow the row's txid back to its own T row and ask whether that
// block is still canonical at the height recorded there. ok is false
// for a stale row.
func (q *ChainQuery) decodeHistoryKey(key []byte) (HistoryEntry, bool, error) {
	const heightLen, txidLen, tagLen, indexLen = 4, chainhash.Size, 1, 4
	if len(key) < heightLen+txidLen+tagLen+indexLen {
		return HistoryEntry{}, false, errs.Consistencyf("chainquery.decodeHistoryKey", "short H key: %d bytes", len(key))
	}
	height := binary.BigEndian.Uint32(key[0:4])
	var txid chainhash.Hash
	copy(txid[:], key[4:4+txidLen])
	tag := key[4+txidLen]
	index := binary.BigEndian.Uint32(key[4+txidLen+tagLen:])

	blockhash, err := q.store.Txstore.Get(store.TxKey(txid.Bytes()))
	if err == store.ErrNotFound {
		return HistoryEntry{}, false, nil
	}
	if err != nil {
		return HistoryEntry{}, false, errs.Storagef("chainquery.decodeHistoryKey", "read T row: %w", err)
	}
	block, canonical, err := q.blockIdFor(blockhash)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	if !canonical || block.Height != height {
		return HistoryEntry{}, false, nil
	}

	return HistoryEntry{
		TxID:    txid,
		Block:   block,
		Funding: store.HistoryTag(tag) == store.TagFunding,
		Index:   index,
	}, true, nil
}

// UTXO returns scripthash's unspent outputs.
func (q *ChainQuery) UTXO(scripthash []byte) ([]UTXOEntry, error) {
	var rows []UTXOEntry
	err := q.store.History.ForEach(store.UTXOPrefix(scripthash), func(key, value []byte) error {
		const txidLen = chainhash.Size
		if len(key) < txidLen+4 {
			return errs.Consistencyf("chainquery.UTXO", "short U key: %d bytes", len(key))
		}
		var txid chainhash.Hash
		copy(txid[:], key[:txidLen])
		vout := binary.BigEndian.Uint32(key[txidLen:])

		amount, err := wire.DecodeAmount(value)
		if err != nil {
			return errs.Consistencyf("chainquery.UTXO", "decode U value: %w", err)
		}

		blockhash, err := q.store.Txstore.Get(store.TxKey(txid.Bytes()))
		if err == store.ErrNotFound {
			return nil
		}
		if err != nil {
			return errs.Storagef("chainquery.UTXO", "read T row: %w", err)
		}
		block, canonical, err := q.blockIdFor(blockhash)
		if err != nil {
			return err
		}
		if !canonical {
			return nil
		}
		rows = append(rows, UTXOEntry{Outpoint: wire.Outpoint{TxID: txid, Vout: vout}, Amount: amount, Block: block})
		return nil
	})
	if err != nil {
		return nil, errs.Storagef("chainquery.UTXO", "%w", err)
	}
	return rows, nil
}

// Stats computes scripthash's tx count and funded/spent totals, reading
// through the S cache row when present and falling back to a full scan.
func (q *ChainQuery) Stats(scripthash []byte) (Stats, error) {
	if cached, ok, err := q.readCachedStats(scripthash); err != nil {
		return Stats{}, err
	} else if ok {
		return cached, nil
	}

	var stats Stats
	seen := make(map[chainhash.Hash]struct{})
	err := q.store.History.ForEach(store.HistoryPrefix(scripthash), func(key, _ []byte) error {
		entry, ok, perr := q.decodeHistoryKey(key)
		if perr != nil {
			return perr
		}
		if !ok {
			return nil // row's block is no longer canonical; skip
		}
		if _, dup := seen[entry.TxID]; !dup {
			seen[entry.TxID] = struct{}{}
			stats.TxCount++
		}

		if entry.Funding {
			amt, ok, aerr := q.fundedOutputAmount(entry)
			if aerr != nil {
				return aerr
			}
			if ok {
				stats.FundedSats += amt
			}
		} else {
			amt, ok, aerr := q.spentOutputAmount(entry)
			if aerr != nil {
				return aerr
			}
			if ok {
				stats.SpentSats += amt
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, errs.Storagef("chainquery.Stats", "%w", err)
	}

	if err := q.writeCachedStats(scripthash, stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// fundedOutputAmount resolves the disclosed value of the output a funding
// H row records, by re-reading entry.TxID's own output at entry.Index out
// of the txstore. ok is false for a confidential (blinded) output, which
// contributes nothing countable to FundedSats.
func (q *ChainQuery) fundedOutputAmount(entry HistoryEntry) (uint64, bool, error) {
	tx, _, ok, err := q.TxByID(entry.TxID)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if int(entry.Index) >= len(tx.Outputs) {
		return 0, false, errs.Consistencyf("chainquery.fundedOutputAmount", "vout %d out of range for tx %s", entry.Index, entry.TxID)
	}
	amt := tx.Outputs[entry.Index].Amount
	if amt.IsConfidential() {
		return 0, false, nil
	}
	return amt.Value, true, nil
}

// spentOutputAmount resolves the disclosed value of the output a spending
// H row consumed: it re-reads entry.TxID's input at entry.Index to find
// the outpoint it spends, then follows that outpoint's own T/B rows back
// to the original output.
func (q *ChainQuery) spentOutputAmount(entry HistoryEntry) (uint64, bool, error) {
	tx, _, ok, err := q.TxByID(entry.TxID)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if int(entry.Index) >= len(tx.Inputs) {
		return 0, false, errs.Consistencyf("chainquery.spentOutputAmount", "vin %d out of range for tx %s", entry.Index, entry.TxID)
	}
	prevOut := tx.Inputs[entry.Index].PrevOut

	blockhash, err := q.store.Txstore.Get(store.TxKey(prevOut.TxID.Bytes()))
	if err == store.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errs.Storagef("chainquery.spentOutputAmount", "read T row: %w", err)
	}
	raw, err := q.store.Txstore.Get(store.BlockKey(blockhash))
	if err != nil {
		return 0, false, errs.Storagef("chainquery.spentOutputAmount", "read B row: %w", err)
	}
	blk, err := wire.ParseBlockBytes(raw)
	if err != nil {
		return 0, false, errs.Protocolf("chainquery.spentOutputAmount", "reparse block: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.TxID() != prevOut.TxID {
			continue
		}
		if int(prevOut.Vout) >= len(t.Outputs) {
			return 0, false, errs.Consistencyf("chainquery.spentOutputAmount", "vout %d out of range for prevout tx %s", prevOut.Vout, prevOut.TxID)
		}
		amt := t.Outputs[prevOut.Vout].Amount
		if amt.IsConfidential() {
			return 0, false, nil
		}
		return amt.Value, true, nil
	}
	return 0, false, errs.Consistencyf("chainquery.spentOutputAmount", "prevout tx %s not found in its own recorded block", prevOut.TxID)
}

// cachedStats is the S-row encoding: the computed Stats plus the history
// row count observed at write time, used as the invalidation marker.
// Any new H row for scripthash changes that count, so a mismatch on read
// is enough to detect staleness without decoding the history stream.
type cachedStats struct {
	RowCount uint32
	Stats    Stats
}

func encodeCachedStats(c cachedStats) []byte {
	buf := make([]byte, 0, 4+4+8+8)
	buf = binary.LittleEndian.AppendUint32(buf, c.RowCount)
	buf = binary.LittleEndian.AppendUint32(buf, c.Stats.TxCount)
	buf = binary.LittleEndian.AppendUint64(buf, c.Stats.FundedSats)
	buf = binary.LittleEndian.AppendUint64(buf, c.Stats.SpentSats)
	return buf
}

func decodeCachedStats(b []byte) (cachedStats, error) {
	if len(b) != 24 {
		return cachedStats{}, errs.Consistencyf("chainquery.decodeCachedStats", "short S row: %d bytes", len(b))
	}
	return cachedStats{
		RowCount: binary.LittleEndian.Uint32(b[0:4]),
		Stats: Stats{
			TxCount:    binary.LittleEndian.Uint32(b[4:8]),
			FundedSats: binary.LittleEndian.Uint64(b[8:16]),
			SpentSats:  binary.LittleEndian.Uint64(b[16:24]),
		},
	}, nil
}

// historyRowCount counts scripthash's H rows without decoding them,
// cheap enough to run on every Stats call to validate the S cache.
func (q *ChainQuery) historyRowCount(scripthash []byte) (uint32, error) {
	var n uint32
	err := q.store.History.ForEach(store.HistoryPrefix(scripthash), func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, errs.Storagef("chainquery.historyRowCount", "%w", err)
	}
	return n, nil
}

// readCachedStats returns the cached Stats for scripthash, with ok=false
// if there is no S row or if the history stream has grown since it was
// written.
func (q *ChainQuery) readCachedStats(scripthash []byte) (Stats, bool, error) {
	raw, err := q.store.Cache.Get(store.StatsKey(scripthash))
	if err == store.ErrNotFound {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, errs.Storagef("chainquery.readCachedStats", "%w", err)
	}
	cached, err := decodeCachedStats(raw)
	if err != nil {
		return Stats{}, false, err
	}
	current, err := q.historyRowCount(scripthash)
	if err != nil {
		return Stats{}, false, err
	}
	if current != cached.RowCount {
		return Stats{}, false, nil
	}
	return cached.Stats, true, nil
}

// writeCachedStats stores stats as scripthash's S row, tagged with the
// history row count observed alongside it.
func (q *ChainQuery) writeCachedStats(scripthash []byte, stats Stats) error {
	count, err := q.historyRowCount(scripthash)
	if err != nil {
		return err
	}
	if err := q.store.Cache.Put(store.StatsKey(scripthash), encodeCachedStats(cachedStats{RowCount: count, Stats: stats})); err != nil {
		return errs.Storagef("chainquery.writeCachedStats", "%w", err)
	}
	return nil
}

func reverse(entries []HistoryEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

func skipUntilAfter(entries []HistoryEntry, after chainhash.Hash) []HistoryEntry {
	for i, e := range entries {
		if e.TxID == after {
			return entries[i+1:]
		}
	}
	return entries
}
