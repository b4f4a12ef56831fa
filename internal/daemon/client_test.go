package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler func(method string) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method)
		resp := response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			raw, err := json.Marshal(result)
			if err != nil {
				t.Fatalf("marshal result: %v", err)
			}
			resp.Result = raw
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(srv *httptest.Server) *Client {
	return &Client{
		endpoint:    srv.URL,
		http:        srv.Client(),
		callTimeout: 2 * time.Second,
		maxRetries:  0,
	}
}

func TestCallDecodesResult(t *testing.T) {
	srv := newTestServer(t, func(method string) (interface{}, *rpcError) {
		if method != "getbestblockhash" {
			t.Fatalf("unexpected method %q", method)
		}
		return "00" + fmt.Sprintf("%062d", 0), nil
	})
	c := clientFor(srv)

	hash, err := c.GetBestBlockHash(context.Background())
	if err != nil {
		t.Fatalf("GetBestBlockHash: %v", err)
	}
	if len(hash) != 64 {
		t.Fatalf("expected a 64-char hex hash, got %q", hash)
	}
}

func TestCallReturnsRPCErrorWithoutRetry(t *testing.T) {
	attempts := 0
	srv := newTestServer(t, func(method string) (interface{}, *rpcError) {
		attempts++
		return nil, &rpcError{Code: -8, Message: "block not found"}
	})
	c := clientFor(srv)
	c.maxRetries = 3

	_, err := c.GetBestBlockHash(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -8 {
		t.Fatalf("expected code -8, got %d", rpcErr.Code)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for an RPC-level error, got %d", attempts)
	}
}

func TestCallRetriesTransportErrors(t *testing.T) {
	c := &Client{
		endpoint:    "http://127.0.0.1:1/", // refused connection
		http:        &http.Client{Timeout: time.Second},
		callTimeout: time.Second,
		maxRetries:  2,
	}
	start := time.Now()
	err := c.Call(context.Background(), "getbestblockhash", nil, nil)
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if time.Since(start) <= 0 {
		t.Fatal("expected some backoff delay to have elapsed")
	}
}

func TestCallRespectsContextCancellation(t *testing.T) {
	srv := newTestServer(t, func(method string) (interface{}, *rpcError) {
		time.Sleep(50 * time.Millisecond)
		return "ok", nil
	})
	c := clientFor(srv)
	c.maxRetries = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Call(ctx, "getbestblockhash", nil, nil)
	if err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
}

func TestReadCookieFileParsesUserPass(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/.cookie"
	if err := os.WriteFile(path, []byte("__cookie__:abc123"), 0600); err != nil {
		t.Fatalf("write cookie: %v", err)
	}
	user, pass, err := readCookieFile(path)
	if err != nil {
		t.Fatalf("readCookieFile: %v", err)
	}
	if user != "__cookie__" || pass != "abc123" {
		t.Fatalf("got user=%q pass=%q", user, pass)
	}
}

