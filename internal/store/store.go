package store

import "encoding/binary"

// Column family key prefixes. These are namespace prefixes applied by
// NewPrefixDB, one level up from the per-row tags inside each CF (the
// single-byte B/X/M/T/H/U/D/S/C tags from SPEC_FULL.md §3).
var (
	cfTxstore = []byte("t/")
	cfHistory = []byte("h/")
	cfCache   = []byte("c/")
	cfHeaders = []byte("d/")
)

// Store owns the four logical column families over one Badger instance.
type Store struct {
	raw     *BadgerDB
	Txstore *PrefixDB
	History *PrefixDB
	Cache   *PrefixDB
	Headers *PrefixDB
}

// Open opens (or creates) a Badger-backed Store at path.
func Open(path string) (*Store, error) {
	raw, err := OpenBadger(path)
	if err != nil {
		return nil, err
	}
	return newStore(raw), nil
}

func newStore(raw *BadgerDB) *Store {
	return &Store{
		raw:     raw,
		Txstore: NewPrefixDB(raw, cfTxstore),
		History: NewPrefixDB(raw, cfHistory),
		Cache:   NewPrefixDB(raw, cfCache),
		Headers: NewPrefixDB(raw, cfHeaders),
	}
}

// IsEmpty reports whether the txstore CF has no rows — the signal the
// block source's selection policy uses to prefer the bulk reader.
func (s *Store) IsEmpty() (bool, error) {
	return s.Txstore.IsEmpty()
}

// Flush forces the memtable and value log to disk.
func (s *Store) Flush() error {
	return s.raw.Sync()
}

// Compact merges all LSM levels into one, reclaiming space left behind
// by overwritten or deleted rows. Not required for correctness
// (SPEC_FULL.md §4.E treats orphan pruning as optional).
func (s *Store) Compact() error {
	return s.raw.Flatten()
}

// Close releases the Store's file handles.
func (s *Store) Close() error {
	return s.raw.Close()
}

// Row-tag constants within the txstore CF (SPEC_FULL.md §3).
var (
	tagBlock = byte('B')
	tagMeta  = byte('X')
	tagDone1 = byte('M')
	tagTx    = byte('T')
)

// Row-tag constants within the history CF.
var (
	tagHistory = byte('H')
	tagUTXO    = byte('U')
	tagDone2   = byte('D')
)

// Row-tag constant within the cache CF.
var tagStats = byte('S')

// HistoryTag distinguishes a funding row from a spending row within the
// H stream.
type HistoryTag byte

const (
	TagFunding  HistoryTag = 0
	TagSpending HistoryTag = 1
)

// BlockKey builds the B-row key for blockhash.
func BlockKey(blockhash []byte) []byte {
	return append([]byte{tagBlock}, blockhash...)
}

// MetaKey builds the X-row key for blockhash.
func MetaKey(blockhash []byte) []byte {
	return append([]byte{tagMeta}, blockhash...)
}

// Phase1DoneKey builds the M-row key for blockhash.
func Phase1DoneKey(blockhash []byte) []byte {
	return append([]byte{tagDone1}, blockhash...)
}

// TxKey builds the T-row key for a txid.
func TxKey(txid []byte) []byte {
	return append([]byte{tagTx}, txid...)
}

// HistoryKey builds an H-row key: scripthash ‖ height(BE,u32) ‖ txid ‖ tag ‖ index(BE,u32).
func HistoryKey(scripthash, txid []byte, height uint32, tag HistoryTag, index uint32) []byte {
	key := make([]byte, 0, 1+len(scripthash)+4+len(txid)+1+4)
	key = append(key, tagHistory)
	key = append(key, scripthash...)
	key = binary.BigEndian.AppendUint32(key, height)
	key = append(key, txid...)
	key = append(key, byte(tag))
	key = binary.BigEndian.AppendUint32(key, index)
	return key
}

// HistoryPrefix builds the scan prefix for all history rows of scripthash.
func HistoryPrefix(scripthash []byte) []byte {
	return append([]byte{tagHistory}, scripthash...)
}

// UTXOKey builds a U-row key: scripthash ‖ txid ‖ vout(BE,u32).
func UTXOKey(scripthash, txid []byte, vout uint32) []byte {
	key := make([]byte, 0, 1+len(scripthash)+len(txid)+4)
	key = append(key, tagUTXO)
	key = append(key, scripthash...)
	key = append(key, txid...)
	key = binary.BigEndian.AppendUint32(key, vout)
	return key
}

// UTXOPrefix builds the scan prefix for all UTXO rows of scripthash.
func UTXOPrefix(scripthash []byte) []byte {
	return append([]byte{tagUTXO}, scripthash...)
}

// Phase2DoneKey builds the D-row key for blockhash.
func Phase2DoneKey(blockhash []byte) []byte {
	return append([]byte{tagDone2}, blockhash...)
}

// StatsKey builds the S-row key for scripthash.
func StatsKey(scripthash []byte) []byte {
	return append([]byte{tagStats}, scripthash...)
}

// HeaderListKey is the single C key the persisted header list is stored under.
var HeaderListKey = []byte{'C'}
