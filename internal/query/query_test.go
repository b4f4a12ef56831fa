package query

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/syscoin-index/sysindex/internal/blocksource"
	"github.com/syscoin-index/sysindex/internal/chainquery"
	"github.com/syscoin-index/sysindex/internal/daemon"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/indexer"
	"github.com/syscoin-index/sysindex/internal/mempool"
	"github.com/syscoin-index/sysindex/internal/store"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
)

func newTestStore() *store.Store {
	mem := store.NewMemory()
	return &store.Store{
		Txstore: store.NewPrefixDB(mem, []byte("t/")),
		History: store.NewPrefixDB(mem, []byte("h/")),
		Cache:   store.NewPrefixDB(mem, []byte("c/")),
		Headers: store.NewPrefixDB(mem, []byte("d/")),
	}
}

// testSource serves pre-built raw blocks straight out of a map, standing
// in for a real blocksource.Source.
type testSource struct {
	blocks map[chainhash.Hash][]byte
}

func (s *testSource) Fetch(_ context.Context, hash chainhash.Hash, _ uint32) (*blocksource.Block, error) {
	raw, ok := s.blocks[hash]
	if !ok {
		return nil, errNotFound
	}
	return &blocksource.Block{Hash: hash, Raw: raw}, nil
}

func (s *testSource) Close() error { return nil }

var errNotFound = fakeErr("query test: block not found")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

// fakeDaemon serves a fixed getrawmempool set for the Facade's mempool side.
type fakeDaemon struct {
	t       *testing.T
	mempool []string
	rawTx   map[string][]byte
	vsize   map[string]uint32
	fee     map[string]uint64
}

type rpcReq struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int           `json:"id"`
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	return &fakeDaemon{t: t, rawTx: make(map[string][]byte), vsize: make(map[string]uint32), fee: make(map[string]uint64)}
}

func (f *fakeDaemon) server() *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Fatalf("decode request: %v", err)
		}
		var result interface{}
		switch req.Method {
		case "getrawmempool":
			result = f.mempool
		case "getrawtransaction":
			txid := req.Params[0].(string)
			result = hex.EncodeToString(f.rawTx[txid])
		case "getmempoolentry":
			txid := req.Params[0].(string)
			result = map[string]interface{}{
				"vsize":  f.vsize[txid],
				"fee":    float64(f.fee[txid]) / 1e8,
				"time":   int64(0),
				"height": uint32(0),
			}
		default:
			f.t.Fatalf("unexpected method %q", req.Method)
		}
		raw, err := json.Marshal(result)
		if err != nil {
			f.t.Fatalf("marshal result: %v", err)
		}
		resp := struct {
			JSONRPC string          `json:"jsonrpc"`
			Result  json.RawMessage `json:"result"`
			ID      int             `json:"id"`
		}{JSONRPC: "2.0", Result: raw, ID: req.ID}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	f.t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *daemon.Client {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	c, err := daemon.New(addr, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return c
}

func idHex(tx *wire.Transaction) string {
	h := tx.TxID()
	return hex.EncodeToString(h.Bytes())
}

// chain is the shared fixture: a one-block confirmed chain (a coinbase
// paying fundScript), with the Store and header list a test can layer an
// independent mempool.Pool + Facade on top of.
type chain struct {
	st         *store.Store
	hl         *headerlist.List
	cq         *chainquery.ChainQuery
	coinbase   *wire.Transaction
	fundScript []byte
}

func setupChain(t *testing.T) chain {
	t.Helper()

	fundScript := []byte{0x76, 0xa9, 0x01}
	coinbase := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{}, Script: []byte{0x00}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(5000000000), Script: fundScript}},
	}
	block := &wire.Block{
		Header:       wire.Header{Time: 1700000000, Bits: 0x1d00ffff},
		Transactions: []*wire.Transaction{coinbase},
	}
	block.Header.MerkleRoot = wire.MerkleRoot([]chainhash.Hash{coinbase.TxID()})

	hl := headerlist.New()
	entries, err := hl.Order([]wire.Header{block.Header})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if err := hl.Apply(entries); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	st := newTestStore()
	src := &testSource{blocks: map[chainhash.Hash][]byte{block.Hash(): block.Serialize()}}

	ix := indexer.New(st, src, hl, 1, 0)
	pending := hl.Snapshot()
	if err := ix.RunTxstorePhase(context.Background(), pending); err != nil {
		t.Fatalf("RunTxstorePhase: %v", err)
	}
	if err := ix.RunHistoryPhase(pending); err != nil {
		t.Fatalf("RunHistoryPhase: %v", err)
	}

	return chain{st: st, hl: hl, cq: chainquery.New(st, hl), coinbase: coinbase, fundScript: fundScript}
}

// poolWithMempool builds a mempool.Pool against c's store, backed by a
// fake daemon reporting the given mempool transaction (if any).
func poolWithMempool(t *testing.T, c chain, fd *fakeDaemon) *mempool.Pool {
	t.Helper()
	srv := fd.server()
	client := newTestClient(t, srv)
	p := mempool.New(c.st, client)
	if err := p.Update(t.Context()); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return p
}

func TestTxByIDFindsConfirmedTransaction(t *testing.T) {
	c := setupChain(t)
	pool := poolWithMempool(t, c, newFakeDaemon(t))
	f := New(c.cq, pool, c.hl)

	res, ok, err := f.TxByID(c.coinbase.TxID())
	if err != nil || !ok {
		t.Fatalf("TxByID: ok=%v err=%v", ok, err)
	}
	if !res.Confirmed {
		t.Fatalf("expected the coinbase to be reported confirmed")
	}
	if res.Block.Height != 0 {
		t.Fatalf("expected height 0, got %d", res.Block.Height)
	}
}

func TestTxByIDUnknownIsAbsent(t *testing.T) {
	c := setupChain(t)
	pool := poolWithMempool(t, c, newFakeDaemon(t))
	f := New(c.cq, pool, c.hl)

	var unknown chainhash.Hash
	unknown[0] = 0xff

	_, ok, err := f.TxByID(unknown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for an unknown txid")
	}
}

func TestHistoryMergesMempoolAheadOfConfirmed(t *testing.T) {
	c := setupChain(t)

	spendScript := []byte{0x76, 0xa9, 0x02}
	spend := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{TxID: c.coinbase.TxID(), Vout: 0}, Script: []byte{0x01}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(4999990000), Script: spendScript}},
	}

	fd := newFakeDaemon(t)
	fd.mempool = []string{idHex(spend)}
	fd.rawTx[idHex(spend)] = spend.Serialize()
	fd.vsize[idHex(spend)] = 200
	fd.fee[idHex(spend)] = 10000

	pool := poolWithMempool(t, c, fd)
	f := New(c.cq, pool, c.hl)

	rows, err := f.History(wire.HashScript(c.fundScript).Bytes(), nil, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 history rows (unconfirmed spend + confirmed funding), got %d", len(rows))
	}
	if rows[0].Confirmed {
		t.Fatalf("expected the unconfirmed spend first, got %+v", rows[0])
	}
	if !rows[1].Confirmed {
		t.Fatalf("expected the confirmed funding row last, got %+v", rows[1])
	}
}

func TestUTXOExcludesOutputsSpentInMempool(t *testing.T) {
	c := setupChain(t)

	spend := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{TxID: c.coinbase.TxID(), Vout: 0}, Script: []byte{0x01}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(4999990000), Script: []byte{0x76, 0xa9, 0x02}}},
	}
	fd := newFakeDaemon(t)
	fd.mempool = []string{idHex(spend)}
	fd.rawTx[idHex(spend)] = spend.Serialize()
	fd.vsize[idHex(spend)] = 200
	fd.fee[idHex(spend)] = 10000

	pool := poolWithMempool(t, c, fd)
	f := New(c.cq, pool, c.hl)

	utxos, err := f.UTXO(wire.HashScript(c.fundScript).Bytes())
	if err != nil {
		t.Fatalf("UTXO: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected the mempool-spent coinbase output to be excluded, got %+v", utxos)
	}
}

func TestStatsCountsUnconfirmedTransactions(t *testing.T) {
	c := setupChain(t)

	spend := &wire.Transaction{
		Version: 1,
		Inputs:  []wire.TxIn{{PrevOut: wire.Outpoint{TxID: c.coinbase.TxID(), Vout: 0}, Script: []byte{0x01}}},
		Outputs: []wire.TxOut{{Amount: wire.PlainAmount(4999990000), Script: []byte{0x76, 0xa9, 0x02}}},
	}
	fd := newFakeDaemon(t)
	fd.mempool = []string{idHex(spend)}
	fd.rawTx[idHex(spend)] = spend.Serialize()
	fd.vsize[idHex(spend)] = 200
	fd.fee[idHex(spend)] = 10000

	pool := poolWithMempool(t, c, fd)
	f := New(c.cq, pool, c.hl)

	stats, err := f.Stats(wire.HashScript(c.fundScript).Bytes())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TxCount != 1 {
		t.Fatalf("expected confirmed TxCount 1, got %d", stats.TxCount)
	}
	if stats.UnconfirmedTxCount != 1 {
		t.Fatalf("expected UnconfirmedTxCount 1, got %d", stats.UnconfirmedTxCount)
	}
}

func TestTipReturnsHeaderListTip(t *testing.T) {
	c := setupChain(t)
	pool := poolWithMempool(t, c, newFakeDaemon(t))
	f := New(c.cq, pool, c.hl)

	if f.Tip() != c.hl.Tip() {
		t.Fatalf("expected Facade.Tip to match the header list tip")
	}
}
