package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cdr.dev/slog/v3"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/logging"
	"github.com/runnerr0/visitrelay/internal/storage"
)

// loadConfig reads --config when given, otherwise the default file,
// creating it on first use.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals == nil || globals.Config == "" {
		return config.LoadOrCreate()
	}
	path, err := config.ExpandPath(globals.Config)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// storageOptions maps the storage section of cfg onto storage.Options.
func storageOptions(cfg *config.Config) (storage.Options, error) {
	dir, err := config.ExpandPath(cfg.Storage.Path)
	if err != nil {
		return storage.Options{}, err
	}
	return storage.Options{
		Driver:      cfg.Storage.Driver,
		Dir:         dir,
		SQLiteFile:  cfg.Storage.SQLiteFile,
		RedisAddr:   cfg.Storage.RedisAddr,
		RedisDB:     cfg.Storage.RedisDB,
		RedisPrefix: cfg.Storage.RedisPrefix,
	}, nil
}

// openStore loads the config and opens the configured backend.
func openStore(ctx context.Context, globals *GlobalFlags) (*config.Config, storage.Store, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	opts, err := storageOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return cfg, store, nil
}

// commandLogger is the stderr logger for one-shot commands: warnings and
// errors only unless --verbose, and never the daemon's log file.
func commandLogger(cfg *config.Config, globals *GlobalFlags) slog.Logger {
	lc := cfg.Logging
	lc.File = ""
	lc.Level = "warn"
	if globals != nil && globals.Verbose {
		lc.Level = "debug"
	}
	log, _, err := logging.New(lc, os.Stderr)
	if err != nil {
		lc.Format = "human"
		log, _, _ = logging.New(lc, os.Stderr)
	}
	return log
}

func daemonURL(cfg *config.Config) string {
	return "http://" + cfg.PanelAddr()
}

// checkDaemon attempts an HTTP GET to the daemon's status endpoint.
// Returns true if the daemon responds within 1 second.
func checkDaemon(baseURL string) bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(baseURL + "/status")
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// onOff renders a boolean setting.
func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
