package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/syscoin-index/sysindex/internal/blocksource"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

// testSource serves pre-built raw blocks straight out of a map, standing
// in for a real blocksource.Source.
type testSource struct {
	blocks map[chainhash.Hash][]byte
}

var errNotFoundInTestSource = errors.New("test source: block not found")

func (s *testSource) Fetch(_ context.Context, hash chainhash.Hash, _ uint32) (*blocksource.Block, error) {
	raw, ok := s.blocks[hash]
	if !ok {
		return nil, errNotFoundInTestSource
	}
	return &blocksource.Block{Hash: hash, Raw: raw}, nil
}

func (s *testSource) Close() error { return nil }

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

func buildChain(n int) ([]*wire.Block, []wire.Header) {
	blocks := make([]*wire.Block, n)
	headers := make([]wire.Header, n)
	var prev chainhash.Hash
	for i := 0; i < n; i++ {
		coinbase := &wire.Transaction{
			Version: 1,
			Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{}, Script: []byte{0x01, byte(i)}}},
			Outputs: []wire.TxOut{{Amount: wire.PlainAmount(5000000000), Script: []byte{0x76, 0xa9, byte(i)}}},
		}
		blk := &wire.Block{
			Header:       wire.Header{PrevHash: prev, Time: uint32(1700000000 + i), Bits: 0x1d00ffff, Nonce: uint32(i)},
			Transactions: []*wire.Transaction{coinbase},
		}
		blk.Header.MerkleRoot = wire.MerkleRoot([]chainhash.Hash{coinbase.TxID()})
		blocks[i] = blk
		headers[i] = blk.Header
		prev = blk.Hash()
	}
	return blocks, headers
}

func TestTxstoreAndHistoryPhasesRoundTrip(t *testing.T) {
	blocks, headers := buildChain(3)

	hl := headerlist.New()
	entries, err := hl.Order(headers)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if err := hl.Apply(entries); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	src := &testSource{blocks: map[chainhash.Hash][]byte{}}
	for _, b := range blocks {
		src.blocks[b.Hash()] = b.Serialize()
	}

	st := newTestStore()
	ix := New(st, src, hl, 2, 0)

	pending := hl.Snapshot()
	if err := ix.RunTxstorePhase(context.Background(), pending); err != nil {
		t.Fatalf("RunTxstorePhase: %v", err)
	}

	for _, e := range pending {
		has, err := st.Txstore.Has(store.Phase1DoneKey(e.Hash.Bytes()))
		if err != nil || !has {
			t.Fatalf("expected M marker for height %d, err=%v has=%v", e.Height, err, has)
		}
	}

	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("RunHistoryPhase: %v", err)
	}
	for _, e := range pending {
		has, err := st.History.Has(store.Phase2DoneKey(e.Hash.Bytes()))
		if err != nil || !has {
			t.Fatalf("expected D marker for height %d, err=%v has=%v", e.Height, err, has)
		}
	}

	firstTxid := blocks[0].Transactions[0].TxID()
	sh := wire.HashScript(blocks[0].Transactions[0].Outputs[0].Script)
	utxoVal, err := st.History.Get(store.UTXOKey(sh.Bytes(), firstTxid.Bytes(), 0))
	if err != nil {
		t.Fatalf("expected a U row for the coinbase output: %v", err)
	}
	amt, err := wire.DecodeAmount(utxoVal)
	if err != nil || amt.Value != 5000000000 {
		t.Fatalf("unexpected decoded amount: %v err=%v", amt, err)
	}
}

func TestHistoryPhaseIsIdempotent(t *testing.T) {
	blocks, headers := buildChain(1)
	hl := headerlist.New()
	entries, _ := hl.Order(headers)
	_ = hl.Apply(entries)

	src := &testSource{blocks: map[chainhash.Hash][]byte{blocks[0].Hash(): blocks[0].Serialize()}}
	st := newTestStore()
	ix := New(st, src, hl, 1, 0)

	pending := hl.Snapshot()
	if err := ix.RunTxstorePhase(context.Background(), pending); err != nil {
		t.Fatalf("RunTxstorePhase: %v", err)
	}
	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("first RunHistoryPhase: %v", err)
	}
	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("second RunHistoryPhase should be a no-op, got: %v", err)
	}
}

func TestSpendingInputProducesHistoryRowAndDeletesUTXO(t *testing.T) {
	blocks, headers := buildChain(1)
	coinbaseTxid := blocks[0].Transactions[0].TxID()
	coinbaseScript := blocks[0].Transactions[0].Outputs[0].Script

	spend := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{TxID: coinbaseTxid, Vout: 0}, Script: []byte{0x00}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(4999990000), Script: []byte{0x76, 0xa9, 0xff}}},
	}
	spendBlock := &wire.Block{
		Header:       wire.Header{PrevHash: blocks[0].Hash(), Time: 1700000100, Bits: 0x1d00ffff, Nonce: 99},
		Transactions: []*wire.Transaction{spend},
	}
	spendBlock.Header.MerkleRoot = wire.MerkleRoot([]chainhash.Hash{spend.TxID()})
	headers = append(headers, spendBlock.Header)
	blocks = append(blocks, spendBlock)

	hl := headerlist.New()
	entries, err := hl.Order(headers)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if err := hl.Apply(entries); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	src := &testSource{blocks: map[chainhash.Hash][]byte{}}
	for _, b := range blocks {
		src.blocks[b.Hash()] = b.Serialize()
	}
	st := newTestStore()
	ix := New(st, src, hl, 2, 0)

	pending := hl.Snapshot()
	if err := ix.RunTxstorePhase(context.Background(), pending); err != nil {
		t.Fatalf("RunTxstorePhase: %v", err)
	}
	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("RunHistoryPhase: %v", err)
	}

	sh := wire.HashScript(coinbaseScript)
	if has, _ := st.History.Has(store.UTXOKey(sh.Bytes(), coinbaseTxid.Bytes(), 0)); has {
		t.Fatalf("expected the spent coinbase output's U row to be deleted")
	}

	found := false
	_ = st.History.ForEach(store.HistoryPrefix(sh.Bytes()), func(key, _ []byte) error {
		found = true
		return nil
	})
	if !found {
		t.Fatalf("expected at least one H row (funding) for the coinbase scripthash")
	}
}
