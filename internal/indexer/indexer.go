// Package indexer runs the two-phase bulk/incremental indexing pipeline:
// a txstore pass that records raw blocks and transactions, followed by a
// history pass that derives per-address funding/spending rows once a
// block's txstore rows are durably committed.
package indexer

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/blocksource"
	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/metrics"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// Indexer drives both passes over the set of blocks that are in the
// current best chain but not yet fully indexed.
type Indexer struct {
	store   *store.Store
	source  blocksource.Source
	headers *headerlist.List
	workers int
	writer  *store.BatchWriter
}

// New builds an Indexer. workers <= 0 defaults to runtime.NumCPU().
func New(s *store.Store, src blocksource.Source, headers *headerlist.List, workers int, batchBudgetBytes int) *Indexer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var writer *store.BatchWriter
	if batchBudgetBytes > 0 {
		writer = store.NewBatchWriterWithBudget(s.Txstore, batchBudgetBytes)
	} else {
		writer = store.NewBatchWriter(s.Txstore)
	}
	return &Indexer{store: s, source: src, headers: headers, workers: workers, writer: writer}
}

// parsedBlock is the output of the CPU-bound worker stage: a decoded
// block plus everything phase 1 needs to write, computed off the driver
// thread so only I/O remains serialized.
type parsedBlock struct {
	height    uint32
	hash      chainhash.Hash
	block     *wire.Block
	meta      wire.Meta
	rawSize   int
	parseErr  error
}

// RunTxstorePhase parses and writes B/X/T/M rows for every entry in
// pending, in height order. Parsing fans out across a worker pool;
// writes are funneled back into one atomic batch per block.
func (ix *Indexer) RunTxstorePhase(ctx context.Context, pending []headerlist.Entry) error {
	if len(pending) == 0 {
		return nil
	}

	jobs := make(chan int)
	results := make([]parsedBlock, len(pending))

	workerCount := ix.workers
	if workerCount > len(pending) {
		workerCount = len(pending)
	}
	done := make(chan struct{})
	for w := 0; w < workerCount; w++ {
		go func() {
			for idx := range jobs {
				results[idx] = ix.parseOne(ctx, pending[idx])
			}
			done <- struct{}{}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range pending {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	for w := 0; w < workerCount; w++ {
		<-done
	}
	if err := ctx.Err(); err != nil {
		return errs.New(errs.Cancelled, "indexer.RunTxstorePhase", err)
	}

	for i, pb := range results {
		if pb.parseErr != nil {
			return errs.Protocolf("indexer.RunTxstorePhase", "block %s: %w", pending[i].Hash, pb.parseErr)
		}
		if err := ix.writeTxstoreRows(pb); err != nil {
			return err
		}
		metrics.BatchBytes.Observe(float64(ix.writer.PendingBytes()))
		if err := ix.writer.Flush(); err != nil {
			return errs.Storagef("indexer.RunTxstorePhase", "commit txstore batch: %w", err)
		}
	}
	return nil
}

func (ix *Indexer) parseOne(ctx context.Context, entry headerlist.Entry) parsedBlock {
	fetched, err := ix.source.Fetch(ctx, entry.Hash, entry.Height)
	if err != nil {
		return parsedBlock{height: entry.Height, hash: entry.Hash, parseErr: err}
	}
	blk, err := wire.ParseBlockBytes(fetched.Raw)
	if err != nil {
		return parsedBlock{height: entry.Height, hash: entry.Hash, parseErr: err}
	}
	meta := wire.ComputeMeta(blk, len(fetched.Raw))
	return parsedBlock{height: entry.Height, hash: entry.Hash, block: blk, meta: meta, rawSize: len(fetched.Raw)}
}

// writeTxstoreRows issues one atomic batch per block: B, X, one T per
// tx, then the M marker, so that any reader observing M is guaranteed
// to observe B/X/T for the same block (SPEC_FULL.md §4.E).
func (ix *Indexer) writeTxstoreRows(pb parsedBlock) error {
	blockhash := pb.hash.Bytes()

	if err := ix.writer.Put(store.BlockKey(blockhash), pb.block.Serialize()); err != nil {
		return errs.Storagef("indexer.writeTxstoreRows", "write B row: %w", err)
	}
	if err := ix.writer.Put(store.MetaKey(blockhash), encodeMeta(pb.meta)); err != nil {
		return errs.Storagef("indexer.writeTxstoreRows", "write X row: %w", err)
	}
	for _, tx := range pb.block.Transactions {
		txid := tx.TxID()
		if err := ix.writer.Put(store.TxKey(txid.Bytes()), blockhash); err != nil {
			return errs.Storagef("indexer.writeTxstoreRows", "write T row: %w", err)
		}
	}
	if err := ix.writer.Put(store.Phase1DoneKey(blockhash), blockhash); err != nil {
		return errs.Storagef("indexer.writeTxstoreRows", "write M row: %w", err)
	}
	applog.Indexer.Debug().Uint32("height", pb.height).Str("hash", pb.hash.String()).Int("txs", len(pb.block.Transactions)).Msg("txstore phase committed block")
	return nil
}

func encodeMeta(m wire.Meta) []byte {
	buf := make([]byte, 0, 16)
	buf = binary.LittleEndian.AppendUint32(buf, m.TxCount)
	buf = binary.LittleEndian.AppendUint32(buf, m.Size)
	buf = binary.LittleEndian.AppendUint32(buf, m.Weight)
	buf = binary.LittleEndian.AppendUint32(buf, m.Time)
	return buf
}

func decodeMeta(b []byte) (wire.Meta, error) {
	if len(b) < 16 {
		return wire.Meta{}, fmt.Errorf("indexer: short blockmeta row, need 16 have %d", len(b))
	}
	return wire.Meta{
		TxCount: binary.LittleEndian.Uint32(b[0:4]),
		Size:    binary.LittleEndian.Uint32(b[4:8]),
		Weight:  binary.LittleEndian.Uint32(b[8:12]),
		Time:    binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}
