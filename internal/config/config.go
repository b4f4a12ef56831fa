// Package config handles sysindexd's runtime configuration: the
// recognized options named in SPEC_FULL.md §6, loaded in precedence
// order (defaults → config file → CLI flags), the way the teacher's own
// config package layers node settings.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Network identifies which daemon deployment the indexer talks to.
type Network string

const (
	Mainnet       Network = "mainnet"
	Testnet       Network = "testnet"
	Regtest       Network = "regtest"
	Liquid        Network = "liquid"
	LiquidRegtest Network = "liquidregtest"
)

// Config holds every option SPEC_FULL.md §6 recognizes.
type Config struct {
	DaemonDir     string `conf:"daemon_dir"`
	DaemonRPCAddr string `conf:"daemon_rpc_addr"`
	CookieFile    string `conf:"cookie_file"`
	Network       Network `conf:"network"`
	DBPath        string `conf:"db_path"`
	JSONRPCImport bool   `conf:"jsonrpc_import"`
	MonitoringAddr string `conf:"monitoring_addr"`
	HTTPAddr      string `conf:"http_addr"`

	IndexBatchSizeBytes int `conf:"index_batch_size_bytes"`
	IndexThreads        int `conf:"index_threads"`

	Log LogConfig
}

// LogConfig holds logging settings, carried from the teacher's own
// LogConfig shape.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory
// for sysindexd's own store (distinct from the daemon's data directory).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sysindex"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Sysindex")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Sysindex")
		}
		return filepath.Join(home, "AppData", "Roaming", "Sysindex")
	default:
		return filepath.Join(home, ".sysindex")
	}
}

// Default returns the indexer's default configuration for network.
func Default(network Network) *Config {
	cfg := &Config{
		DaemonDir:           defaultDaemonDir(network),
		DaemonRPCAddr:       "127.0.0.1:8370",
		Network:             network,
		DBPath:              DefaultDataDir(),
		JSONRPCImport:       false,
		MonitoringAddr:      "127.0.0.1:9370",
		HTTPAddr:            "127.0.0.1:8371",
		IndexBatchSizeBytes: 10 << 20,
		IndexThreads:        runtime.NumCPU(),
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
	switch network {
	case Testnet:
		cfg.DaemonRPCAddr = "127.0.0.1:18370"
	case Regtest:
		cfg.DaemonRPCAddr = "127.0.0.1:18470"
	case Liquid:
		cfg.DaemonRPCAddr = "127.0.0.1:7041"
	case LiquidRegtest:
		cfg.DaemonRPCAddr = "127.0.0.1:7141"
	}
	return cfg
}

func defaultDaemonDir(network Network) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch network {
	case Liquid, LiquidRegtest:
		return filepath.Join(home, ".elements")
	default:
		return filepath.Join(home, ".syscoin")
	}
}

// DBDir returns the directory the Store opens, matching SPEC_FULL.md
// §6's "<db_path>/newindex/" layout.
func (c *Config) DBDir() string {
	return filepath.Join(c.DBPath, "newindex")
}

// DefaultCookieFile returns the daemon's default cookie-auth file path
// when CookieFile is left unset.
func (c *Config) DefaultCookieFile() string {
	return filepath.Join(c.DaemonDir, ".cookie")
}

// BlocksDir returns the daemon's blk*.dat directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.DaemonDir, "blocks")
}
