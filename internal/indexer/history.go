package indexer

import (
	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/metrics"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// RunHistoryPhase derives H/U rows for every entry whose M marker is
// present but whose D marker is absent, in order, one atomic batch per
// block. Phase 2 re-reads each block from the txstore rather than
// reusing phase 1's in-memory parse, so it can resume correctly after a
// crash between the two phases (SPEC_FULL.md §4.E, scenario S6).
func (ix *Indexer) RunHistoryPhase(pending []headerlist.Entry) error {
	historyWriter := store.NewBatchWriter(ix.store.History)

	for _, entry := range pending {
		blockhash := entry.Hash.Bytes()

		done, err := ix.store.History.Has(store.Phase2DoneKey(blockhash))
		if err != nil {
			return errs.Storagef("indexer.RunHistoryPhase", "check D marker: %w", err)
		}
		if done {
			continue
		}

		marked, err := ix.store.Txstore.Has(store.Phase1DoneKey(blockhash))
		if err != nil {
			return errs.Storagef("indexer.RunHistoryPhase", "check M marker: %w", err)
		}
		if !marked {
			return errs.Consistencyf("indexer.RunHistoryPhase", "block %s has no phase-1 marker", entry.Hash)
		}

		raw, err := ix.store.Txstore.Get(store.BlockKey(blockhash))
		if err != nil {
			return errs.Storagef("indexer.RunHistoryPhase", "read B row: %w", err)
		}
		blk, err := wire.ParseBlockBytes(raw)
		if err != nil {
			return errs.Protocolf("indexer.RunHistoryPhase", "reparse block %s: %w", entry.Hash, err)
		}

		if err := ix.writeHistoryRows(historyWriter, entry.Height, entry.Hash, blk); err != nil {
			return err
		}
		if err := historyWriter.Put(store.Phase2DoneKey(blockhash), blockhash); err != nil {
			return errs.Storagef("indexer.RunHistoryPhase", "write D row: %w", err)
		}
		metrics.BatchBytes.Observe(float64(historyWriter.PendingBytes()))
		if err := historyWriter.Flush(); err != nil {
			return errs.Storagef("indexer.RunHistoryPhase", "commit history batch: %w", err)
		}
		applog.Indexer.Debug().Uint32("height", entry.Height).Str("hash", entry.Hash.String()).Msg("history phase committed block")
	}
	return nil
}

func (ix *Indexer) writeHistoryRows(w *store.BatchWriter, height uint32, blockhash chainhash.Hash, blk *wire.Block) error {
	for _, tx := range blk.Transactions {
		txid := tx.TxID()

		for vout, out := range tx.Outputs {
			sh := wire.HashScript(out.Script)
			key := store.HistoryKey(sh.Bytes(), txid.Bytes(), height, store.TagFunding, uint32(vout))
			if err := w.Put(key, nil); err != nil {
				return errs.Storagef("indexer.writeHistoryRows", "write H funding row: %w", err)
			}
			utxoKey := store.UTXOKey(sh.Bytes(), txid.Bytes(), uint32(vout))
			if err := w.Put(utxoKey, out.Amount.Encode()); err != nil {
				return errs.Storagef("indexer.writeHistoryRows", "write U row: %w", err)
			}
		}

		if tx.IsCoinbase() {
			continue
		}
		for vin, in := range tx.Inputs {
			prevScript, err := ix.lookupPrevoutScript(in.PrevOut)
			if err != nil {
				return errs.Consistencyf("indexer.writeHistoryRows", "prevout %s lookup: %w", in.PrevOut, err)
			}
			sh := wire.HashScript(prevScript)
			key := store.HistoryKey(sh.Bytes(), txid.Bytes(), height, store.TagSpending, uint32(vin))
			if err := w.Put(key, nil); err != nil {
				return errs.Storagef("indexer.writeHistoryRows", "write H spending row: %w", err)
			}
			utxoKey := store.UTXOKey(sh.Bytes(), in.PrevOut.TxID.Bytes(), in.PrevOut.Vout)
			if err := w.Delete(utxoKey); err != nil {
				return errs.Storagef("indexer.writeHistoryRows", "delete spent U row: %w", err)
			}
		}
	}
	_ = blockhash
	return nil
}

// lookupPrevoutScript resolves an input's scriptPubKey by following its
// T row to the containing block, then re-parsing that block to read the
// referenced output — phase 2 only begins once phase 1 has committed,
// so this lookup is guaranteed to succeed for any non-coinbase input
// spending a confirmed output.
func (ix *Indexer) lookupPrevoutScript(op wire.Outpoint) ([]byte, error) {
	blockhash, err := ix.store.Txstore.Get(store.TxKey(op.TxID.Bytes()))
	if err != nil {
		return nil, err
	}
	raw, err := ix.store.Txstore.Get(store.BlockKey(blockhash))
	if err != nil {
		return nil, err
	}
	blk, err := wire.ParseBlockBytes(raw)
	if err != nil {
		return nil, err
	}
	for _, tx := range blk.Transactions {
		if tx.TxID() != op.TxID {
			continue
		}
		if int(op.Vout) >= len(tx.Outputs) {
			return nil, errs.Consistencyf("indexer.lookupPrevoutScript", "vout %d out of range for tx %s", op.Vout, op.TxID)
		}
		return tx.Outputs[op.Vout].Script, nil
	}
	return nil, errs.Consistencyf("indexer.lookupPrevoutScript", "tx %s not found in its own recorded block", op.TxID)
}
