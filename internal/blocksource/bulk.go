package blocksource

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"golang.org/x/exp/mmap"

	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// BulkSource serves block bytes out of an in-memory index built by a
// single pass over the daemon's blk*.dat files, memory-mapped rather
// than read wholesale so a multi-gigabyte blocks directory doesn't need
// to fit in the process's heap twice over.
type BulkSource struct {
	index map[chainhash.Hash][]byte
}

// OpenBulk globs dir for blk*.dat files, scans each in numeric order,
// and indexes every record it finds by block hash.
func OpenBulk(dir string) (*BulkSource, error) {
	files, err := filepath.Glob(filepath.Join(dir, "blk*.dat"))
	if err != nil {
		return nil, errs.Storagef("blocksource.OpenBulk", "glob %s: %w", dir, err)
	}
	sort.Strings(files)

	index := make(map[chainhash.Hash][]byte)
	for _, path := range files {
		if err := indexFile(path, index); err != nil {
			return nil, errs.Storagef("blocksource.OpenBulk", "index %s: %w", path, err)
		}
	}
	return &BulkSource{index: index}, nil
}

func indexFile(path string, into map[chainhash.Hash][]byte) error {
	ra, err := mmap.Open(path)
	if err != nil {
		return err
	}
	defer ra.Close()

	data := make([]byte, ra.Len())
	if _, err := ra.ReadAt(data, 0); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return wire.ScanRecords(data, func(rec wire.Record) error {
		if len(rec.Bytes) < wire.HeaderSize {
			return nil // truncated/corrupt record, skip
		}
		hdr, err := wire.ParseHeader(rec.Bytes[:wire.HeaderSize])
		if err != nil {
			return nil
		}
		into[hdr.Hash()] = rec.Bytes
		return nil
	})
}

// Fetch returns the raw block bytes for hash, or ErrNotIndexed if no
// blk*.dat record matched it.
func (s *BulkSource) Fetch(_ context.Context, hash chainhash.Hash, _ uint32) (*Block, error) {
	raw, ok := s.index[hash]
	if !ok {
		return nil, ErrNotIndexed
	}
	return &Block{Hash: hash, Raw: raw}, nil
}

// Len reports how many blocks the bulk index holds, mostly for logging.
func (s *BulkSource) Len() int { return len(s.index) }

func (s *BulkSource) Close() error { return nil }
