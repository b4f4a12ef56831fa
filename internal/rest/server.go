// Package rest is a minimal read-only JSON surface over the Query
// facade, grounded on the teacher's RPC server (internal/rpc) for its
// listener lifecycle and response-writing conventions but restyled
// around stdlib net/http pattern routing instead of a single JSON-RPC
// dispatch method, since every operation here is a plain GET.
package rest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/query"
	"github.com/syscoin-index/sysindex/pkg/addr"
	"github.com/syscoin-index/sysindex/pkg/chainhash"
	"github.com/syscoin-index/sysindex/pkg/wire"
	"github.com/rs/zerolog"
)

// Server exposes the Query facade over HTTP/JSON.
type Server struct {
	addr   string
	facade *query.Facade
	server *http.Server
	logger zerolog.Logger
	ln     net.Listener
}

// New creates a Server bound to addr, serving reads from facade.
func New(addr string, facade *query.Facade) *Server {
	s := &Server{addr: addr, facade: facade, logger: applog.RPC}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tx/{txid}", s.handleTxByID)
	mux.HandleFunc("GET /address/{scripthash}/history", s.handleHistory)
	mux.HandleFunc("GET /address/{scripthash}/utxo", s.handleUTXO)
	mux.HandleFunc("GET /address/{scripthash}/stats", s.handleStats)
	mux.HandleFunc("GET /addr/{address}/history", s.handleHistory)
	mux.HandleFunc("GET /addr/{address}/utxo", s.handleUTXO)
	mux.HandleFunc("GET /addr/{address}/stats", s.handleStats)
	mux.HandleFunc("GET /blocks/tip", s.handleTip)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine,
// returning once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rest listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("REST server error")
		}
	}()
	return nil
}

// Addr returns the bound listener address (useful when addr was ":0").
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseScripthash resolves the scripthash a request targets, either from
// the raw hex {scripthash} path segment or by decoding an {address}
// segment through pkg/addr and rebuilding its scriptPubKey — the REST
// layer is where the two out-of-core collaborators spec.md §1 names
// (address encoding and the REST surface itself) actually meet.
func parseScripthash(r *http.Request) ([]byte, bool) {
	if raw := r.PathValue("scripthash"); raw != "" {
		sh, err := hex.DecodeString(raw)
		if err != nil || len(sh) != 32 {
			return nil, false
		}
		return sh, true
	}
	if raw := r.PathValue("address"); raw != "" {
		a, err := addr.Decode(raw)
		if err != nil {
			return nil, false
		}
		script, err := scriptPubKeyFor(a)
		if err != nil {
			return nil, false
		}
		sh := wire.HashScript(script)
		return sh.Bytes(), true
	}
	return nil, false
}

// Bitcoin-style script opcodes needed to rebuild a scriptPubKey from a
// decoded address's network/kind/hash — the indexer never builds scripts
// from addresses anywhere else (phase 2 derives scripthashes from
// confirmed scriptPubKeys directly), so this lives here rather than in
// pkg/wire.
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac
	opEqual       = 0x87
)

func scriptPubKeyFor(a addr.Address) ([]byte, error) {
	switch a.Kind {
	case addr.KindP2PKH:
		script := make([]byte, 0, len(a.Hash)+5)
		script = append(script, opDup, opHash160, byte(len(a.Hash)))
		script = append(script, a.Hash...)
		script = append(script, opEqualVerify, opCheckSig)
		return script, nil
	case addr.KindP2SH:
		script := make([]byte, 0, len(a.Hash)+3)
		script = append(script, opHash160, byte(len(a.Hash)))
		script = append(script, a.Hash...)
		script = append(script, opEqual)
		return script, nil
	case addr.KindWitness:
		script := make([]byte, 0, len(a.Hash)+2)
		script = append(script, witnessVersionOpcode(a.WitnessVersion), byte(len(a.Hash)))
		script = append(script, a.Hash...)
		return script, nil
	default:
		return nil, fmt.Errorf("rest: unknown address kind %d", a.Kind)
	}
}

// witnessVersionOpcode maps a witness version (0-16) to its push opcode:
// OP_0 for v0, OP_1..OP_16 (0x51..0x60) for v1-16.
func witnessVersionOpcode(version int) byte {
	if version == 0 {
		return 0x00
	}
	return byte(0x50 + version)
}

func (s *Server) handleTxByID(w http.ResponseWriter, r *http.Request) {
	txid, err := chainhash.FromHex(r.PathValue("txid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid txid")
		return
	}

	res, ok, err := s.facade.TxByID(txid)
	if err != nil {
		s.logger.Error().Err(err).Msg("TxByID failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"txid":      hex.EncodeToString(res.Tx.TxID().Bytes()),
		"confirmed": res.Confirmed,
		"height":    res.Block.Height,
		"vsize":     res.Tx.VSize(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sh, ok := parseScripthash(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scripthash")
		return
	}

	var lastSeen *chainhash.Hash
	if after := r.URL.Query().Get("after"); after != "" {
		h, err := chainhash.FromHex(after)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after txid")
			return
		}
		lastSeen = &h
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rows, err := s.facade.History(sh, lastSeen, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("History failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out[i] = map[string]interface{}{
			"txid":      hex.EncodeToString(row.TxID.Bytes()),
			"funding":   row.Funding,
			"index":     row.Index,
			"confirmed": row.Confirmed,
			"height":    row.Block.Height,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUTXO(w http.ResponseWriter, r *http.Request) {
	sh, ok := parseScripthash(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scripthash")
		return
	}

	utxos, err := s.facade.UTXO(sh)
	if err != nil {
		s.logger.Error().Err(err).Msg("UTXO failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]interface{}, len(utxos))
	for i, u := range utxos {
		out[i] = map[string]interface{}{
			"txid":      hex.EncodeToString(u.Outpoint.TxID.Bytes()),
			"vout":      u.Outpoint.Vout,
			"amount":    u.Amount.Value,
			"confirmed": u.Confirmed,
			"height":    u.Block.Height,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sh, ok := parseScripthash(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scripthash")
		return
	}

	stats, err := s.facade.Stats(sh)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stats failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tx_count":             stats.TxCount,
		"funded_sats":          stats.FundedSats,
		"spent_sats":           stats.SpentSats,
		"unconfirmed_tx_count": stats.UnconfirmedTxCount,
	})
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"hash": hex.EncodeToString(s.facade.Tip().Bytes())})
}
