package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// Flags holds the parsed CLI flags before they are layered onto a Config.
// Set* companions record which flags the operator actually passed, so
// ApplyFlags only overwrites fields explicitly set on the command line.
type Flags struct {
	Help    bool
	Version bool

	Network       string
	DataDir       string
	ConfigFile    string
	DaemonDir     string
	DaemonRPCAddr string
	CookieFile    string
	DBPath        string
	JSONRPCImport bool
	MonitoringAddr string
	HTTPAddr      string
	IndexBatchSizeBytes int
	IndexThreads        int
	LogLevel      string
	LogFile       string
	LogJSON       bool

	SetNetwork        bool
	SetDataDir        bool
	SetDaemonDir      bool
	SetDaemonRPCAddr  bool
	SetCookieFile     bool
	SetDBPath         bool
	SetJSONRPCImport  bool
	SetMonitoringAddr bool
	SetHTTPAddr       bool
	SetIndexBatchSizeBytes bool
	SetIndexThreads   bool
	SetLogLevel       bool
	SetLogFile        bool
	SetLogJSON        bool

	Args []string
}

// ParseFlags parses os.Args[1:] into a Flags value.
func ParseFlags() (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("sysindexd", flag.ContinueOnError)
	fs.Usage = printUsage

	fs.BoolVar(&f.Help, "help", false, "show this help message")
	fs.BoolVar(&f.Help, "h", false, "shorthand for --help")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")
	fs.BoolVar(&f.Version, "v", false, "shorthand for --version")

	fs.StringVar(&f.Network, "network", "", "mainnet, testnet, regtest, liquid, or liquidregtest")
	fs.StringVar(&f.DataDir, "datadir", "", "sysindexd's own data directory")
	fs.StringVar(&f.ConfigFile, "config", "", "path to a config file")
	fs.StringVar(&f.ConfigFile, "c", "", "shorthand for --config")
	fs.StringVar(&f.DaemonDir, "daemon-dir", "", "the full node's data directory")
	fs.StringVar(&f.DaemonRPCAddr, "daemon-rpc-addr", "", "host:port of the daemon's JSON-RPC server")
	fs.StringVar(&f.CookieFile, "cookie-file", "", "path to the daemon's .cookie auth file")
	fs.StringVar(&f.DBPath, "db-path", "", "directory for the indexer's own store")
	fs.BoolVar(&f.JSONRPCImport, "jsonrpc-import", false, "force the RPC bulk loader instead of reading blk*.dat")
	fs.StringVar(&f.MonitoringAddr, "monitoring-addr", "", "host:port for the Prometheus /metrics endpoint")
	fs.StringVar(&f.HTTPAddr, "http-addr", "", "host:port for the read-only REST API")
	fs.IntVar(&f.IndexBatchSizeBytes, "index-batch-size-bytes", 0, "target cumulative batch size before a commit")
	fs.IntVar(&f.IndexThreads, "index-threads", 0, "worker pool size for block parsing")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn, or error")
	fs.StringVar(&f.LogFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&f.LogJSON, "log-json", false, "emit logs as JSON instead of colored console text")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	f.SetNetwork = isFlagSet(fs, "network")
	f.SetDataDir = isFlagSet(fs, "datadir")
	f.SetDaemonDir = isFlagSet(fs, "daemon-dir")
	f.SetDaemonRPCAddr = isFlagSet(fs, "daemon-rpc-addr")
	f.SetCookieFile = isFlagSet(fs, "cookie-file")
	f.SetDBPath = isFlagSet(fs, "db-path")
	f.SetJSONRPCImport = isFlagSet(fs, "jsonrpc-import")
	f.SetMonitoringAddr = isFlagSet(fs, "monitoring-addr")
	f.SetHTTPAddr = isFlagSet(fs, "http-addr")
	f.SetIndexBatchSizeBytes = isFlagSet(fs, "index-batch-size-bytes")
	f.SetIndexThreads = isFlagSet(fs, "index-threads")
	f.SetLogLevel = isFlagSet(fs, "log-level")
	f.SetLogFile = isFlagSet(fs, "log-file")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()
	return f, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// ApplyFlags layers explicitly-set flags onto cfg, in precedence above
// both defaults and the config file.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.SetNetwork {
		cfg.Network = Network(f.Network)
	}
	if f.SetDataDir {
		cfg.DBPath = f.DataDir
	}
	if f.SetDaemonDir {
		cfg.DaemonDir = f.DaemonDir
	}
	if f.SetDaemonRPCAddr {
		cfg.DaemonRPCAddr = f.DaemonRPCAddr
	}
	if f.SetCookieFile {
		cfg.CookieFile = f.CookieFile
	}
	if f.SetDBPath {
		cfg.DBPath = f.DBPath
	}
	if f.SetJSONRPCImport {
		cfg.JSONRPCImport = f.JSONRPCImport
	}
	if f.SetMonitoringAddr {
		cfg.MonitoringAddr = f.MonitoringAddr
	}
	if f.SetHTTPAddr {
		cfg.HTTPAddr = f.HTTPAddr
	}
	if f.SetIndexBatchSizeBytes {
		cfg.IndexBatchSizeBytes = f.IndexBatchSizeBytes
	}
	if f.SetIndexThreads {
		cfg.IndexThreads = f.IndexThreads
	}
	if f.SetLogLevel {
		cfg.Log.Level = f.LogLevel
	}
	if f.SetLogFile {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// EnsureDataDirs idempotently creates cfg's own directories and writes a
// starter config file if one is not already present.
func EnsureDataDirs(cfg *Config, configPath string) error {
	for _, dir := range []string{cfg.DBPath, filepath.Dir(configPath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return WriteDefaultConfig(configPath, cfg)
}

// Load orchestrates the full precedence chain: defaults → config file →
// CLI flags → validation.
func Load() (*Config, error) {
	flags, err := ParseFlags()
	if err != nil {
		return nil, err
	}
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("sysindexd (development build)")
		os.Exit(0)
	}

	network := Network("mainnet")
	if flags.SetNetwork {
		network = Network(flags.Network)
	}
	cfg := Default(network)
	if flags.SetDataDir {
		cfg.DBPath = flags.DataDir
	}

	configPath := filepath.Join(cfg.DBPath, "sysindex.conf")
	if flags.ConfigFile != "" {
		configPath = flags.ConfigFile
	}
	if err := EnsureDataDirs(cfg, configPath); err != nil {
		return nil, err
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config file %s: %w", configPath, err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, err
	}

	ApplyFlags(cfg, flags)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `sysindexd — Syscoin-derived blockchain indexer and query server

Usage:
  sysindexd [flags]

Flags:
  --network string            mainnet, testnet, regtest, liquid, or liquidregtest
  --datadir string             sysindexd's own data directory
  --config, -c string          path to a config file
  --daemon-dir string          the full node's data directory
  --daemon-rpc-addr string      host:port of the daemon's JSON-RPC server
  --cookie-file string          path to the daemon's .cookie auth file
  --db-path string              directory for the indexer's own store
  --jsonrpc-import               force the RPC bulk loader instead of blk*.dat
  --monitoring-addr string      host:port for the Prometheus /metrics endpoint
  --http-addr string            host:port for the read-only REST API
  --index-batch-size-bytes int  target cumulative batch size before a commit
  --index-threads int           worker pool size for block parsing
  --log-level string            debug, info, warn, or error
  --log-file string              also write logs to this file
  --log-json                      emit logs as JSON
  --help, -h                      show this help message
  --version, -v                   print version and exit
`)
}
