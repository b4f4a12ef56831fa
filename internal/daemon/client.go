// Package daemon is a JSON-RPC 2.0 client for the Syscoin-style full
// node sysindexd reads from, grounded on the teacher's rpcclient package
// but extended with cookie-file auth, context deadlines, and retry with
// backoff on transport errors.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/syscoin-index/sysindex/internal/errs"
)

// Client is a JSON-RPC 2.0 HTTP client for the daemon's RPC server.
type Client struct {
	endpoint string
	http     *http.Client
	user     string
	pass     string

	callTimeout time.Duration
	maxRetries  int
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCallTimeout overrides the per-call context deadline (default 30s).
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithMaxRetries overrides the number of retries on transport errors
// (default 5).
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBasicAuth sets static user/password credentials, bypassing the
// cookie file.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.user = user
		c.pass = pass
	}
}

// New creates a client targeting addr (host:port), authenticating via
// the daemon's cookie file unless WithBasicAuth overrides it.
func New(addr, cookieFile string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:    "http://" + addr + "/",
		http:        &http.Client{},
		callTimeout: 30 * time.Second,
		maxRetries:  5,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.user == "" && cookieFile != "" {
		user, pass, err := readCookieFile(cookieFile)
		if err != nil {
			return nil, errs.Configf("daemon.New", "read cookie file: %w", err)
		}
		c.user, c.pass = user, pass
	}
	return c, nil
}

// readCookieFile parses the daemon's ".cookie" auth file, which holds a
// single "user:password" line regenerated on every daemon start.
func readCookieFile(path string) (user, pass string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cookie file %s", path)
	}
	return parts[0], parts[1], nil
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the daemon responds with a JSON-RPC error
// object; it is a protocol-level error, not a transport failure, and is
// never retried.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("daemon rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method with params and unmarshals the result into result
// (which may be nil to discard it). Transport errors are retried with
// exponential backoff and jitter up to the client's configured retry
// count; RPCError and context cancellation are returned immediately.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return errs.New(errs.Cancelled, "daemon.Call", err)
			}
		}

		err := c.callOnce(ctx, method, params, result)
		if err == nil {
			return nil
		}
		if _, ok := err.(*RPCError); ok {
			return err
		}
		if ctx.Err() != nil {
			return errs.New(errs.Cancelled, "daemon.Call", ctx.Err())
		}
		lastErr = err
	}
	return errs.New(errs.Transport, "daemon.Call", fmt.Errorf("%s: exhausted %d retries: %w", method, c.maxRetries, lastErr))
}

func (c *Client) callOnce(ctx context.Context, method string, params, result interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// sleepBackoff waits an exponentially growing, jittered delay before
// retry number attempt, or returns ctx's error if it's cancelled first.
func sleepBackoff(ctx context.Context, attempt int) error {
	base := 200 * time.Millisecond
	max := 5 * time.Second
	d := base * time.Duration(1<<uint(attempt-1))
	if d > max {
		d = max
	}
	d += time.Duration(rand.Int63n(int64(d) / 2 + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
