package store

// PrefixDB namespaces an inner DB under a fixed key prefix, giving each
// logical column family its own keyspace within one underlying Badger
// instance.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB wraps inner so every key is transparently prefixed.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates keys under prefix within this namespace; the callback
// receives keys with the namespace prefix already stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	full := p.prefixed(prefix)
	return p.inner.ForEach(full, func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// IsEmpty reports whether any key exists under this namespace.
func (p *PrefixDB) IsEmpty() (bool, error) {
	empty := true
	err := p.inner.ForEach(p.prefix, func(_, _ []byte) error {
		empty = false
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		return false, err
	}
	return empty, nil
}

var errStopIteration = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "store: stop iteration" }

// Close is a no-op: the underlying Badger instance owns the real handle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a Batch scoped to this namespace, backed by the inner
// DB's real atomic batch when available.
func (p *PrefixDB) NewBatch() Batch {
	if batcher, ok := p.inner.(Batcher); ok {
		return &prefixBatch{inner: batcher.NewBatch(), prefix: p.prefix}
	}
	return &prefixFallbackBatch{db: p}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (pb *prefixBatch) prefixed(key []byte) []byte {
	out := make([]byte, len(pb.prefix)+len(key))
	copy(out, pb.prefix)
	copy(out[len(pb.prefix):], key)
	return out
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(pb.prefixed(key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(pb.prefixed(key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

// prefixFallbackBatch buffers writes and applies them non-atomically
// when the inner DB has no real batch support (e.g. an in-memory test DB).
type prefixFallbackBatch struct {
	db  *PrefixDB
	ops []fallbackOp
}

type fallbackOp struct {
	key   []byte
	value []byte // nil means delete
}

func (fb *prefixFallbackBatch) Put(key, value []byte) error {
	k, v := append([]byte(nil), key...), append([]byte(nil), value...)
	fb.ops = append(fb.ops, fallbackOp{k, v})
	return nil
}

func (fb *prefixFallbackBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	fb.ops = append(fb.ops, fallbackOp{k, nil})
	return nil
}

func (fb *prefixFallbackBatch) Commit() error {
	for _, op := range fb.ops {
		if op.value == nil {
			if err := fb.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := fb.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}
