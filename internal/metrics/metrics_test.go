package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestServerExposesMetricsEndpoint(t *testing.T) {
	IndexedHeight.Set(42)

	s := New("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "sysindex_indexed_height 42") {
		t.Fatalf("expected indexed_height gauge in output, got:\n%s", body)
	}
}

func TestObserveRPCLatencyPropagatesError(t *testing.T) {
	wantErr := errTest("boom")
	err := ObserveRPCLatency("getblockhash", func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("expected the wrapped error to propagate, got %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
