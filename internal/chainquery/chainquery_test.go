package chainquery

import (
	"context"
	"errors"
	"testing"

	"github.com/syscoin-index/sysindex/internal/blocksource"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/indexer"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// newTestStore builds a Store backed by an in-memory DB, with the same
// column-family prefixes the production Badger-backed Store uses.
func newTestStore() *store.Store {
	mem := store.NewMemory()
	return &store.Store{
		Txstore: store.NewPrefixDB(mem, []byte("t/")),
		History: store.NewPrefixDB(mem, []byte("h/")),
		Cache:   store.NewPrefixDB(mem, []byte("c/")),
		Headers: store.NewPrefixDB(mem, []byte("d/")),
	}
}

// testChain builds a small coinbase-only chain where block 1's tx spends
// block 0's coinbase output, giving both funding and spending H rows for
// the same scripthash.
type testChain struct {
	blocks     []*wire.Block
	headers    []wire.Header
	fundScript []byte
	spendTxid  chainhash.Hash
}

func buildTestChain(t *testing.T) testChain {
	t.Helper()

	fundScript := []byte{0x76, 0xa9, 0x01}
	coinbase := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{}, Script: []byte{0x00}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(5000000000), Script: fundScript}},
	}
	block0 := &wire.Block{
		Header:       wire.Header{Time: 1700000000, Bits: 0x1d00ffff, Nonce: 0},
		Transactions: []*wire.Transaction{coinbase},
	}
	block0.Header.MerkleRoot = wire.MerkleRoot([]chainhash.Hash{coinbase.TxID()})

	spendScript := []byte{0x76, 0xa9, 0x02}
	spend := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{TxID: coinbase.TxID(), Vout: 0}, Script: []byte{0x01}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(4999990000), Script: spendScript}},
	}
	block1 := &wire.Block{
		Header:       wire.Header{PrevHash: block0.Hash(), Time: 1700000100, Bits: 0x1d00ffff, Nonce: 1},
		Transactions: []*wire.Transaction{spend},
	}
	block1.Header.MerkleRoot = wire.MerkleRoot([]chainhash.Hash{spend.TxID()})

	return testChain{
		blocks:     []*wire.Block{block0, block1},
		headers:    []wire.Header{block0.Header, block1.Header},
		fundScript: fundScript,
		spendTxid:  spend.TxID(),
	}
}

var errUnknownTestBlock = errors.New("chainquery test: block not found")

// testSource serves pre-built raw blocks straight out of a map, standing
// in for a real blocksource.Source.
type testSource struct {
	blocks map[chainhash.Hash][]byte
}

func (s *testSource) Fetch(_ context.Context, hash chainhash.Hash, _ uint32) (*blocksource.Block, error) {
	raw, ok := s.blocks[hash]
	if !ok {
		return nil, errUnknownTestBlock
	}
	return &blocksource.Block{Hash: hash, Raw: raw}, nil
}

func (s *testSource) Close() error { return nil }

func newQueryWithIndexedChain(t *testing.T) (*ChainQuery, *headerlist.List, *store.Store, testChain) {
	t.Helper()
	chain := buildTestChain(t)

	hl := headerlist.New()
	entries, err := hl.Order(chain.headers)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if err := hl.Apply(entries); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	st := newTestStore()
	src := &testSource{blocks: map[chainhash.Hash][]byte{}}
	for _, b := range chain.blocks {
		src.blocks[b.Hash()] = b.Serialize()
	}

	ix := indexer.New(st, src, hl, 2, 0)
	pending := hl.Snapshot()
	if err := ix.RunTxstorePhase(context.Background(), pending); err != nil {
		t.Fatalf("RunTxstorePhase: %v", err)
	}
	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("RunHistoryPhase: %v", err)
	}

	return New(st, hl), hl, st, chain
}

func TestTxByIDReturnsKnownTransaction(t *testing.T) {
	q, _, _, chain := newQueryWithIndexedChain(t)

	coinbaseTxid := chain.blocks[0].Transactions[0].TxID()
	tx, block, ok, err := q.TxByID(coinbaseTxid)
	if err != nil || !ok {
		t.Fatalf("TxByID: ok=%v err=%v", ok, err)
	}
	if block.Height != 0 {
		t.Fatalf("expected height 0, got %d", block.Height)
	}
	if tx.TxID() != coinbaseTxid {
		t.Fatalf("txid mismatch")
	}
}

func TestTxByIDUnknownTxidIsAbsent(t *testing.T) {
	q, _, _, _ := newQueryWithIndexedChain(t)
	var unknown chainhash.Hash
	unknown[0] = 0xff

	_, _, ok, err := q.TxByID(unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for unknown txid")
	}
}

func TestHistoryShowsFundingAndSpendingDescendingByHeight(t *testing.T) {
	q, _, _, chain := newQueryWithIndexedChain(t)
	sh := wire.HashScript(chain.fundScript)

	rows, err := q.History(sh.Bytes(), nil, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(rows))
	}
	// Descending height: the spend (height 1) must come first.
	if rows[0].Funding {
		t.Fatalf("expected row 0 to be the spend, got funding=%v", rows[0].Funding)
	}
	if !rows[1].Funding {
		t.Fatalf("expected row 1 to be the funding row")
	}
}

func TestHistoryPaginatesByLastSeenTxid(t *testing.T) {
	q, _, _, chain := newQueryWithIndexedChain(t)
	sh := wire.HashScript(chain.fundScript)

	full, err := q.History(sh.Bytes(), nil, 0)
	if err != nil || len(full) != 2 {
		t.Fatalf("History: %v rows=%d", err, len(full))
	}

	rest, err := q.History(sh.Bytes(), &full[0].TxID, 0)
	if err != nil {
		t.Fatalf("History with pagination: %v", err)
	}
	if len(rest) != 1 || rest[0].TxID != full[1].TxID {
		t.Fatalf("expected pagination to skip past the first row, got %+v", rest)
	}
}

func TestUTXOExcludesSpentOutputs(t *testing.T) {
	q, _, _, chain := newQueryWithIndexedChain(t)
	fundSH := wire.HashScript(chain.fundScript)

	utxos, err := q.UTXO(fundSH.Bytes())
	if err != nil {
		t.Fatalf("UTXO: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected the spent coinbase output to be absent, got %d entries", len(utxos))
	}
}

func TestStatsComputesFundedAndSpentTotalsAndCaches(t *testing.T) {
	q, _, st, chain := newQueryWithIndexedChain(t)
	fundSH := wire.HashScript(chain.fundScript)

	stats, err := q.Stats(fundSH.Bytes())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TxCount != 2 {
		t.Fatalf("expected TxCount 2, got %d", stats.TxCount)
	}
	if stats.FundedSats != 5000000000 {
		t.Fatalf("expected FundedSats 5000000000, got %d", stats.FundedSats)
	}
	if stats.SpentSats != 5000000000 {
		t.Fatalf("expected SpentSats 5000000000, got %d", stats.SpentSats)
	}

	if has, _ := st.Cache.Has(store.StatsKey(fundSH.Bytes())); !has {
		t.Fatalf("expected Stats to populate the S cache row")
	}

	// A second call must hit the cache and return the same result.
	again, err := q.Stats(fundSH.Bytes())
	if err != nil || again != stats {
		t.Fatalf("expected cached Stats to match: again=%+v err=%v", again, err)
	}
}

func TestRowsBecomeAbsentAfterReorg(t *testing.T) {
	q, hl, _, chain := newQueryWithIndexedChain(t)
	fundSH := wire.HashScript(chain.fundScript)

	// Replace block 1 with a competing header at the same height, forking
	// off the still-canonical block 0.
	replacement := chain.headers[1]
	replacement.Nonce = 999999
	entries, err := hl.Order([]wire.Header{replacement})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if err := hl.Apply(entries); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rows, err := q.History(fundSH.Bytes(), nil, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for _, r := range rows {
		if r.Funding == false {
			t.Fatalf("expected the spending row tied to the old block 1 to be filtered out, got %+v", r)
		}
	}
}
