// Package applog provides structured, colored logging for sysindexd,
// adapted from the teacher's zerolog-based logging package.
package applog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for the indexer's subsystems.
var (
	Indexer   zerolog.Logger
	Daemon    zerolog.Logger
	Store     zerolog.Logger
	Mempool   zerolog.Logger
	Query     zerolog.Logger
	RPC       zerolog.Logger
	Metrics   zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init configures the global and component loggers. When file is
// non-empty, logs are written to both the console (colored or JSON
// depending on jsonOutput) and the file (always JSON, for machine
// parsing by log aggregators).
func Init(level string, jsonOutput bool, file string) error {
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}

		lvl := parseLevel(level)

		var consoleWriter io.Writer
		if jsonOutput {
			consoleWriter = os.Stdout
		} else {
			consoleWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05", NoColor: false}
		}

		multi := zerolog.MultiLevelWriter(consoleWriter, f)
		Logger = zerolog.New(multi).Level(lvl).With().Timestamp().Logger()
	} else if jsonOutput {
		Logger = NewJSONLogger(os.Stdout, level)
	} else {
		Logger = NewConsoleLogger(os.Stdout, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger at level.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: false}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

// NewJSONLogger creates a structured JSON logger at level.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Indexer = Logger.With().Str("component", "indexer").Logger()
	Daemon = Logger.With().Str("component", "daemon").Logger()
	Store = Logger.With().Str("component", "store").Logger()
	Mempool = Logger.With().Str("component", "mempool").Logger()
	Query = Logger.With().Str("component", "query").Logger()
	RPC = Logger.With().Str("component", "rpc").Logger()
	Metrics = Logger.With().Str("component", "metrics").Logger()
}

// WithComponent returns a logger tagged with an arbitrary component name,
// for the rarer subsystem that doesn't warrant its own package-level var.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
