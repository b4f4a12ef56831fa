package store

// defaultBatchBudgetBytes is the target cumulative byte cost per commit
// (SPEC_FULL.md §4.A: "~10 MiB") used to amortize LSM compaction when a
// single logical write (e.g. one oversized block) would otherwise grow
// an unbounded transaction.
const defaultBatchBudgetBytes = 10 << 20

// BatchWriter accumulates writes across possibly many underlying Batches,
// committing and starting a fresh one whenever the cumulative byte cost
// of buffered writes crosses budgetBytes. Callers that need a single
// block's writes to be atomic must keep each block's total cost under
// the budget (true in practice: a ~10 MiB budget comfortably covers one
// block's txstore or history rows) and call Flush once per block.
type BatchWriter struct {
	db           Batcher
	budgetBytes  int
	current      Batch
	pendingBytes int
}

// NewBatchWriter creates a BatchWriter with the default ~10 MiB budget.
func NewBatchWriter(db Batcher) *BatchWriter {
	return &BatchWriter{db: db, budgetBytes: defaultBatchBudgetBytes}
}

// NewBatchWriterWithBudget creates a BatchWriter with an explicit byte
// budget (used when the operator overrides index_batch_size_bytes).
func NewBatchWriterWithBudget(db Batcher, budgetBytes int) *BatchWriter {
	if budgetBytes <= 0 {
		budgetBytes = defaultBatchBudgetBytes
	}
	return &BatchWriter{db: db, budgetBytes: budgetBytes}
}

func (w *BatchWriter) ensureBatch() {
	if w.current == nil {
		w.current = w.db.NewBatch()
	}
}

// Put buffers a write, committing the current batch first if it would
// otherwise exceed the byte budget.
func (w *BatchWriter) Put(key, value []byte) error {
	if err := w.rotateIfOverBudget(len(key) + len(value)); err != nil {
		return err
	}
	w.ensureBatch()
	if err := w.current.Put(key, value); err != nil {
		return err
	}
	w.pendingBytes += len(key) + len(value)
	return nil
}

// Delete buffers a deletion.
func (w *BatchWriter) Delete(key []byte) error {
	if err := w.rotateIfOverBudget(len(key)); err != nil {
		return err
	}
	w.ensureBatch()
	if err := w.current.Delete(key); err != nil {
		return err
	}
	w.pendingBytes += len(key)
	return nil
}

// PendingBytes returns the cumulative byte cost buffered in the current
// batch, for callers that want to observe commit sizes before Flush
// resets the counter.
func (w *BatchWriter) PendingBytes() int {
	return w.pendingBytes
}

func (w *BatchWriter) rotateIfOverBudget(added int) error {
	if w.current == nil || w.pendingBytes+added <= w.budgetBytes {
		return nil
	}
	return w.Flush()
}

// Flush commits the current batch, if any, and resets for the next one.
func (w *BatchWriter) Flush() error {
	if w.current == nil {
		return nil
	}
	err := w.current.Commit()
	w.current = nil
	w.pendingBytes = 0
	return err
}
