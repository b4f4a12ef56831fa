// Sysindexd is the indexing daemon: it mirrors a Syscoin (or Elements)
// full node's confirmed chain and mempool into a local Badger store and
// serves read-only queries over it.
//
// Usage:
//
//	sysindexd [--network=mainnet] [--daemon-rpc-addr=host:port]  Run the indexer
//	sysindexd --help                                              Show help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/syscoin-index/sysindex/internal/applog"
	"github.com/syscoin-index/sysindex/internal/blocksource"
	"github.com/syscoin-index/sysindex/internal/chainquery"
	"github.com/syscoin-index/sysindex/internal/config"
	"github.com/syscoin-index/sysindex/internal/daemon"
	"github.com/syscoin-index/sysindex/internal/headerlist"
	"github.com/syscoin-index/sysindex/internal/indexer"
	"github.com/syscoin-index/sysindex/internal/mempool"
	"github.com/syscoin-index/sysindex/internal/metrics"
	"github.com/syscoin-index/sysindex/internal/query"
	"github.com/syscoin-index/sysindex/internal/rest"
	"github.com/syscoin-index/sysindex/internal/store"
)

// pollInterval is how often sysindexd re-checks the daemon for new
// headers and mempool changes, per SPEC_FULL.md §5's poll-driven model.
const pollInterval = 5 * time.Second

func main() {
	// ── 1. Load config (defaults → file → flags) ─────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ────────────────────────────────────────────────
	if err := applog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := applog.WithComponent("main")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("daemon_rpc_addr", cfg.DaemonRPCAddr).
		Str("db_path", cfg.DBDir()).
		Msg("Starting sysindexd")

	// ── 3. Open the store ─────────────────────────────────────────────
	st, err := store.Open(cfg.DBDir())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBDir()).Msg("failed to open store")
	}
	defer st.Close()

	storeWasEmpty, err := st.IsEmpty()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to check store state")
	}

	// ── 4. Load (or create) the header list ──────────────────────────
	headers, err := loadHeaderList(st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load header list")
	}
	logger.Info().Int("headers", headers.Len()).Msg("header list loaded")

	// ── 5. Connect to the daemon ───────────────────────────────────────
	cookieFile := cfg.CookieFile
	if cookieFile == "" {
		cookieFile = cfg.DefaultCookieFile()
	}
	client, err := daemon.New(cfg.DaemonRPCAddr, cookieFile)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.DaemonRPCAddr).Msg("failed to create daemon client")
	}

	// ── 6. Choose the block source ─────────────────────────────────────
	mode := blocksource.ChooseMode(storeWasEmpty, cfg.JSONRPCImport)
	var src blocksource.Source
	switch mode {
	case blocksource.ModeBulk:
		bulk, err := blocksource.OpenBulk(cfg.BlocksDir())
		if err != nil {
			logger.Warn().Err(err).Msg("bulk block source unavailable, falling back to RPC")
			src = blocksource.NewRPC(client)
		} else {
			src = bulk
		}
	default:
		src = blocksource.NewRPC(client)
	}
	defer src.Close()
	logger.Info().Str("mode", mode.String()).Msg("block source selected")

	// ── 7. Build the indexer, confirmed query layer, and mempool mirror ─
	ix := indexer.New(st, src, headers, cfg.IndexThreads, cfg.IndexBatchSizeBytes)
	cq := chainquery.New(st, headers)
	pool := mempool.New(st, client)
	facade := query.New(cq, pool, headers)

	// ── 8. Start the REST and metrics servers ──────────────────────────
	restServer := rest.New(cfg.HTTPAddr, facade)
	if err := restServer.Start(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.HTTPAddr).Msg("failed to start REST server")
	}
	defer restServer.Stop()
	logger.Info().Str("addr", restServer.Addr()).Msg("REST server started")

	metricsServer := metrics.New(cfg.MonitoringAddr)
	if err := metricsServer.Start(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.MonitoringAddr).Msg("failed to start metrics server")
	}
	defer metricsServer.Stop()
	logger.Info().Str("addr", metricsServer.Addr()).Msg("metrics server started")

	// ── 9. Run the initial sync pass before accepting the poll loop ────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runSyncPass(ctx, ix, client, headers, st, logger); err != nil {
		logger.Error().Err(err).Msg("initial sync pass failed")
	}
	if err := pool.Update(ctx); err != nil {
		logger.Error().Err(err).Msg("initial mempool update failed")
	}
	metrics.MempoolSize.Set(float64(pool.Count()))

	// ── 10. Poll loop ────────────────────────────────────────────────
	go runPollLoop(ctx, ix, client, headers, pool, st, logger)

	// ── 11. Wait for shutdown ──────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	cancel()
	if err := saveHeaderList(st, headers); err != nil {
		logger.Error().Err(err).Msg("failed to persist header list on shutdown")
	}
	logger.Info().Msg("goodbye")
}

// runPollLoop re-runs a sync pass and a mempool update every
// pollInterval until ctx is cancelled.
func runPollLoop(ctx context.Context, ix *indexer.Indexer, client *daemon.Client, headers *headerlist.List, pool *mempool.Pool, st *store.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runSyncPass(ctx, ix, client, headers, st, logger); err != nil {
				logger.Error().Err(err).Msg("sync pass failed")
				continue
			}
			if err := pool.Update(ctx); err != nil {
				logger.Error().Err(err).Msg("mempool update failed")
				continue
			}
			metrics.MempoolSize.Set(float64(pool.Count()))
			metrics.IndexedHeight.Set(float64(headers.Len() - 1))
		}
	}
}

// runSyncPass runs one indexing pass and persists the resulting header
// list so a restart doesn't need to re-fetch headers already applied.
func runSyncPass(ctx context.Context, ix *indexer.Indexer, client *daemon.Client, headers *headerlist.List, st *store.Store, logger zerolog.Logger) error {
	before := headers.Len()
	if err := metrics.ObserveRPCLatency("sync", func() error { return ix.Sync(ctx, client) }); err != nil {
		return err
	}
	if headers.Len() != before {
		if err := saveHeaderList(st, headers); err != nil {
			logger.Error().Err(err).Msg("failed to persist header list")
		}
	}
	return nil
}

// loadHeaderList reads the persisted header list from the headers CF,
// starting fresh if none has been written yet.
func loadHeaderList(st *store.Store) (*headerlist.List, error) {
	raw, err := st.Headers.Get(store.HeaderListKey)
	if errors.Is(err, store.ErrNotFound) {
		return headerlist.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return headerlist.Deserialize(raw)
}

// saveHeaderList persists the header list to its single row in the
// headers CF.
func saveHeaderList(st *store.Store, headers *headerlist.List) error {
	return st.Headers.Put(store.HeaderListKey, headers.Serialize())
}
