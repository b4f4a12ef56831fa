package store

import "sort"

// MemoryDB is a map-backed DB used by tests that don't need real
// persistence. It implements no Batcher — PrefixDB falls back to its
// non-atomic buffered batch over this implementation.
type MemoryDB struct {
	data map[string][]byte
}

// NewMemory creates an empty MemoryDB.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryDB) Put(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemoryDB) Delete(key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *MemoryDB) Has(key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), m.data[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryDB) Close() error {
	return nil
}
