package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads sysindexd configuration from a "key = value" file,
// "#" starting a comment. A missing file is not an error — it yields
// an empty map so Default's values stand.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}
	return values, scanner.Err()
}

// ApplyFileConfig layers file-sourced values onto cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "daemon_dir":
		cfg.DaemonDir = value
	case "daemon_rpc_addr":
		cfg.DaemonRPCAddr = value
	case "cookie_file":
		cfg.CookieFile = value
	case "network":
		cfg.Network = Network(value)
	case "db_path":
		cfg.DBPath = value
	case "jsonrpc_import":
		cfg.JSONRPCImport = parseBool(value)
	case "monitoring_addr":
		cfg.MonitoringAddr = value
	case "http_addr":
		cfg.HTTPAddr = value
	case "index_batch_size_bytes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.IndexBatchSizeBytes = n
	case "index_threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.IndexThreads = n
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	default:
		return fmt.Errorf("unrecognized config key")
	}
	return nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// WriteDefaultConfig writes a commented starter config file if none
// exists yet, mirroring the teacher's idempotent first-run behavior.
func WriteDefaultConfig(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already present
	}
	var sb strings.Builder
	sb.WriteString("# sysindexd configuration\n")
	fmt.Fprintf(&sb, "network = %s\n", cfg.Network)
	fmt.Fprintf(&sb, "daemon_dir = %s\n", cfg.DaemonDir)
	fmt.Fprintf(&sb, "daemon_rpc_addr = %s\n", cfg.DaemonRPCAddr)
	fmt.Fprintf(&sb, "db_path = %s\n", cfg.DBPath)
	fmt.Fprintf(&sb, "monitoring_addr = %s\n", cfg.MonitoringAddr)
	fmt.Fprintf(&sb, "http_addr = %s\n", cfg.HTTPAddr)
	fmt.Fprintf(&sb, "log.level = %s\n", cfg.Log.Level)
	return os.WriteFile(path, []byte(sb.String()), 0644)
}
