// Package metrics exposes Prometheus counters and gauges for the
// indexer's internal state, giving spec.md §6's monitoring_addr config
// key a real listener.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syscoin-index/sysindex/internal/applog"
)

var (
	// IndexedHeight is the height of the most recently indexed block.
	IndexedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sysindex",
		Name:      "indexed_height",
		Help:      "Height of the most recently indexed block.",
	})

	// MempoolSize is the number of transactions currently held in the
	// mempool mirror.
	MempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sysindex",
		Name:      "mempool_size",
		Help:      "Number of transactions currently tracked in the mempool mirror.",
	})

	// RPCLatencySeconds observes daemon RPC call latency by method.
	RPCLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sysindex",
		Name:      "rpc_latency_seconds",
		Help:      "Daemon RPC call latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// BatchBytes observes the size of each Store batch written.
	BatchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sysindex",
		Name:      "store_batch_bytes",
		Help:      "Size in bytes of each Store batch written.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})

	// ReorgsTotal counts header-list reorgs applied.
	ReorgsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sysindex",
		Name:      "reorgs_total",
		Help:      "Total number of chain reorganizations applied to the header list.",
	})
)

// ObserveRPCLatency is a convenience wrapper recording how long fn took
// against method's latency histogram.
func ObserveRPCLatency(method string, fn func() error) error {
	start := time.Now()
	err := fn()
	RPCLatencySeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return err
}

// Server serves the /metrics endpoint via promhttp.Handler.
type Server struct {
	addr   string
	server *http.Server
	ln     net.Listener
}

// New creates a metrics Server bound to addr.
func New(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{addr: addr, server: &http.Server{Handler: mux, ReadTimeout: 10 * time.Second}}
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			applog.Metrics.Error().Err(err).Msg("metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound listener address.
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
