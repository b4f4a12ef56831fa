package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/syscoin-index/sysindex/internal/errs"
)

// BadgerDB implements DB and Batcher over an embedded Badger LSM.
type BadgerDB struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger database at path.
func OpenBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Badger's own logger is noisy; the indexer logs around it instead.

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, errs.Storagef("store.Open", "database at %s is locked by another process (is another sysindexd instance running?): %w", path, err)
		}
		return nil, errs.Storagef("store.Open", "open database at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

// Get retrieves a value by key.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Storagef("store.Get", "%w", err)
	}
	return val, nil
}

// Put stores a single key-value pair in its own transaction.
func (b *BadgerDB) Put(key, value []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		return errs.Storagef("store.Put", "%w", err)
	}
	return nil
}

// Delete removes a single key in its own transaction.
func (b *BadgerDB) Delete(key []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return errs.Storagef("store.Delete", "%w", err)
	}
	return nil
}

// Has reports whether key exists.
func (b *BadgerDB) Has(key []byte) (bool, error) {
	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, errs.Storagef("store.Has", "%w", err)
	}
	return exists, nil
}

// ForEach iterates all keys sharing prefix in ascending order.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the database's file handles and background compaction
// goroutines.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

// Sync forces Badger's value log and memtable to disk.
func (b *BadgerDB) Sync() error {
	return b.db.Sync()
}

// Flatten merges all LSM levels into one, used by the maintenance CLI's
// compact subcommand. It is not required for correctness.
func (b *BadgerDB) Flatten() error {
	return b.db.Flatten(1)
}

// NewBatch starts an atomic write batch backed by a single Badger
// transaction: every Put/Delete buffered before Commit either all apply
// or none do. This is the real implementation of the Batcher contract
// the PrefixDB view relies on (closing the gap left by an undefined
// Batcher reference in the code this package is descended from).
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{txn: b.db.NewTransaction(true)}
}

type badgerBatch struct {
	txn *badger.Txn
	db  *BadgerDB
}

func (bb *badgerBatch) Put(key, value []byte) error {
	if err := bb.txn.Set(key, value); err != nil {
		return fmt.Errorf("store: batch put: %w", err)
	}
	return nil
}

func (bb *badgerBatch) Delete(key []byte) error {
	if err := bb.txn.Delete(key); err != nil {
		return fmt.Errorf("store: batch delete: %w", err)
	}
	return nil
}

func (bb *badgerBatch) Commit() error {
	defer bb.txn.Discard()
	if err := bb.txn.Commit(); err != nil {
		return errs.Storagef("store.Batch.Commit", "%w", err)
	}
	return nil
}
