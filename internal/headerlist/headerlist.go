// Package headerlist implements the reorg-safe, pure in-memory canonical
// chain of block headers described in SPEC_FULL.md §4.B. It holds no
// storage handle: persistence is the caller's responsibility, via
// Serialize/Deserialize into the headers column family's single row.
package headerlist

import (
	"encoding/binary"
	"sync"

	"github.com/syscoin-index/sysindex/internal/errs"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// Entry is one header at a fixed height in the canonical chain.
type Entry struct {
	Height uint32
	Hash   chainhash.Hash
	Header wire.Header
}

// List is the reorg-safe, height-ordered header sequence. The zero value
// is a valid empty list. Safe for concurrent readers; List.Apply must be
// called by a single owner (the indexer driver).
type List struct {
	mu      sync.RWMutex
	entries []Entry
	heights map[chainhash.Hash]uint32
}

// New creates an empty header list.
func New() *List {
	return &List{heights: make(map[chainhash.Hash]uint32)}
}

// Len returns the number of entries currently held.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Tip returns the hash of the last entry, or the zero hash if empty.
func (l *List) Tip() chainhash.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return chainhash.Hash{}
	}
	return l.entries[len(l.entries)-1].Hash
}

// ByHeight returns the entry at height, if present.
func (l *List) ByHeight(height uint32) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if int(height) >= len(l.entries) {
		return Entry{}, false
	}
	return l.entries[height], true
}

// ByHash returns the entry for hash, if it is part of the current
// canonical list.
func (l *List) ByHash(hash chainhash.Hash) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	height, ok := l.heights[hash]
	if !ok {
		return Entry{}, false
	}
	return l.entries[height], true
}

// IsCanonicalAt reports whether hash is the canonical hash at height —
// the cross-check every chain-query read performs before trusting a
// stored row (SPEC_FULL.md §4.F).
func (l *List) IsCanonicalAt(height uint32, hash chainhash.Hash) bool {
	entry, ok := l.ByHeight(height)
	return ok && entry.Hash == hash
}

// Snapshot returns an immutable copy of the current entries, safe to
// range over without holding any lock — the "shared immutable snapshot
// swapped on apply" SPEC_FULL.md §5 describes.
func (l *List) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Order labels a contiguous run of raw headers with absolute heights,
// validating contiguity within raw and against its parent. raw must chain
// from either the genesis point (zero prev_hash, only valid when the
// list is currently empty) or a hash already known to this list. It
// does not mutate the list; callers pass the result to Apply.
func (l *List) Order(raw []wire.Header) ([]Entry, error) {
	if len(raw) == 0 {
		return nil, errs.Consistencyf("headerlist.Order", "empty header segment")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	first := raw[0]
	var startHeight uint32
	switch {
	case first.PrevHash.IsZero():
		if len(l.entries) != 0 {
			return nil, errs.Consistencyf("headerlist.Order", "genesis header submitted to a non-empty list")
		}
		startHeight = 0
	default:
		parentHeight, ok := l.heights[first.PrevHash]
		if !ok {
			return nil, errs.Consistencyf("headerlist.Order", "prev_hash %s not found in header list", first.PrevHash)
		}
		startHeight = parentHeight + 1
	}

	entries := make([]Entry, len(raw))
	prevHash := first.PrevHash
	for i, h := range raw {
		if h.PrevHash != prevHash {
			return nil, errs.Consistencyf("headerlist.Order", "header %d breaks contiguity: prev_hash %s != expected %s", i, h.PrevHash, prevHash)
		}
		hh := h
		entries[i] = Entry{Height: startHeight + uint32(i), Hash: hh.Hash(), Header: hh}
		prevHash = entries[i].Hash
	}
	return entries, nil
}

// Apply truncates the list at entries[0].Height and appends entries,
// rebuilding the hash→height index accordingly. This is the sole reorg
// primitive and the only operation that may decrease Len: a caller that
// observes the daemon's tip diverge from ours calls Apply with a fresh
// segment starting at the fork height.
func (l *List) Apply(entries []Entry) error {
	if len(entries) == 0 {
		return errs.Consistencyf("headerlist.Apply", "empty entries")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heights == nil {
		l.heights = make(map[chainhash.Hash]uint32)
	}

	truncateAt := entries[0].Height
	if int(truncateAt) > len(l.entries) {
		return errs.Consistencyf("headerlist.Apply", "truncate height %d beyond current length %d", truncateAt, len(l.entries))
	}

	for i, e := range entries {
		if e.Height != truncateAt+uint32(i) {
			return errs.Consistencyf("headerlist.Apply", "entries not contiguously height-ordered at index %d", i)
		}
		if i == 0 {
			if truncateAt > 0 {
				parent := l.entries[truncateAt-1]
				if e.Header.PrevHash != parent.Hash {
					return errs.Consistencyf("headerlist.Apply", "entries[0].prev_hash %s does not match retained tip %s", e.Header.PrevHash, parent.Hash)
				}
			} else if !e.Header.PrevHash.IsZero() {
				return errs.Consistencyf("headerlist.Apply", "first entry at height 0 must have zero prev_hash")
			}
		} else if e.Header.PrevHash != entries[i-1].Hash {
			return errs.Consistencyf("headerlist.Apply", "entries[%d].prev_hash does not chain from entries[%d]", i, i-1)
		}
	}

	// Retire the hash index for every truncated entry.
	for i := int(truncateAt); i < len(l.entries); i++ {
		delete(l.heights, l.entries[i].Hash)
	}
	l.entries = append(l.entries[:truncateAt:truncateAt], entries...)
	for _, e := range entries {
		l.heights[e.Hash] = e.Height
	}
	return nil
}

// persisted is the on-disk form written to the headers CF's single row.
type persisted struct {
	Headers []wire.Header
}

// Serialize encodes the list's headers (everything else is derivable)
// for storage under the headers CF's C key.
func (l *List) Serialize() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(l.entries)))
	for _, e := range l.entries {
		buf = append(buf, e.Header.Serialize()...)
	}
	return buf
}

// Deserialize rebuilds a List from bytes produced by Serialize.
func Deserialize(data []byte) (*List, error) {
	if len(data) < 4 {
		return nil, errs.Storagef("headerlist.Deserialize", "truncated header list (need 4-byte count, have %d)", len(data))
	}
	count := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]

	l := New()
	entries := make([]Entry, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < wire.HeaderSize {
			return nil, errs.Storagef("headerlist.Deserialize", "truncated header at index %d", i)
		}
		h, err := wire.ParseHeader(data[:wire.HeaderSize])
		if err != nil {
			return nil, errs.Storagef("headerlist.Deserialize", "parse header %d: %w", i, err)
		}
		data = data[wire.HeaderSize:]
		entries[i] = Entry{Height: i, Hash: h.Hash(), Header: *h}
	}
	l.entries = entries
	for _, e := range entries {
		l.heights[e.Hash] = e.Height
	}
	return l, nil
}
