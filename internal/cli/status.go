package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/flush"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string                `json:"version"`
	StorageDriver     string                `json:"storage_driver"`
	DatabasePath      string                `json:"database_path,omitempty"`
	DatabaseSizeBytes int64                 `json:"database_size_bytes,omitempty"`
	SchemaVersion     int                   `json:"schema_version,omitempty"`
	Endpoint          string                `json:"endpoint"`
	BufferedVisits    int                   `json:"buffered_visits"`
	Hostnames         []state.HostnameCount `json:"hostnames"`
	LastSentAt        string                `json:"last_sent_at,omitempty"`
	SendDue           bool                  `json:"send_due"`
	LastVisitedDomain string                `json:"last_visited_domain,omitempty"`
	LiveMode          bool                  `json:"live_mode"`
	AllowlistEnabled  bool                  `json:"allowlist_enabled"`
	AllowlistDomains  []string              `json:"allowlist_domains"`
	DaemonRunning     bool                  `json:"daemon_running"`
}

// sqliteInfo is implemented by stores that can report file details.
type sqliteInfo interface {
	Size(ctx context.Context) int64
	SchemaVersion(ctx context.Context) (int, error)
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	ctx := context.Background()
	cfg, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, cfg, store)
}

// executeWithStore runs status against a provided store (for testing).
func (c *StatusCommand) executeWithStore(ctx context.Context, cfg *config.Config, store storage.Store) error {
	st, err := state.New(store, nil).Load(ctx)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}

	out := statusJSON{
		Version:           c.version,
		StorageDriver:     cfg.Storage.Driver,
		Endpoint:          cfg.Endpoint.URL,
		BufferedVisits:    len(st.Entries),
		Hostnames:         state.Summarize(st).Hostnames,
		SendDue:           flush.Due(st.LastSentAtMillis, time.Now(), cfg.MaxAge()),
		LastVisitedDomain: st.LastVisitedDomain,
		LiveMode:          st.Settings.LiveMode,
		AllowlistEnabled:  st.Settings.AllowlistEnabled,
		AllowlistDomains:  st.Settings.AllowlistDomains,
		DaemonRunning:     checkDaemon(daemonURL(cfg)),
	}
	if out.AllowlistDomains == nil {
		out.AllowlistDomains = []string{}
	}
	if st.LastSentAtMillis != 0 {
		out.LastSentAt = st.LastSentAt().UTC().Format(time.RFC3339)
	}
	if cfg.Storage.Driver == storage.DriverSQLite {
		if dir, err := config.ExpandPath(cfg.Storage.Path); err == nil {
			out.DatabasePath = filepath.Join(dir, cfg.Storage.SQLiteFile)
		}
	}
	if s, ok := store.(sqliteInfo); ok {
		out.DatabaseSizeBytes = s.Size(ctx)
		if v, err := s.SchemaVersion(ctx); err == nil {
			out.SchemaVersion = v
		}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}
	c.printStatusHuman(out, st)
	return nil
}

func (c *StatusCommand) printStatusHuman(out statusJSON, st *state.State) {
	fmt.Println("Visit Relay Status")
	fmt.Println("==================")
	fmt.Printf("Version:       %s\n", out.Version)
	if out.DatabasePath != "" {
		fmt.Printf("Storage:       %s %s (%s, schema v%d)\n", out.StorageDriver, out.DatabasePath,
			formatBytes(out.DatabaseSizeBytes), out.SchemaVersion)
	} else {
		fmt.Printf("Storage:       %s\n", out.StorageDriver)
	}
	fmt.Printf("Endpoint:      %s\n", out.Endpoint)
	fmt.Printf("Buffered:      %s visits across %s hostnames\n",
		formatNumber(int64(out.BufferedVisits)), formatNumber(int64(len(out.Hostnames))))

	if st.LastSentAtMillis != 0 {
		fmt.Printf("Last sent:     %s\n", st.LastSentAt().Local().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("Last sent:     never")
	}
	if out.SendDue {
		fmt.Println("Send due:      yes")
	} else {
		fmt.Println("Send due:      no")
	}
	if out.LastVisitedDomain != "" {
		fmt.Printf("Last domain:   %s\n", out.LastVisitedDomain)
	}
	fmt.Printf("Live mode:     %s\n", onOff(out.LiveMode))
	fmt.Printf("Allowlist:     %s (%d hostnames)\n", onOff(out.AllowlistEnabled), len(out.AllowlistDomains))

	if len(out.Hostnames) > 0 {
		fmt.Println()
		fmt.Println("Hostnames:")
		for _, h := range out.Hostnames {
			fmt.Printf("  %-30s %s\n", h.Hostname, formatNumber(int64(h.Count)))
		}
	}

	fmt.Println()
	if out.DaemonRunning {
		fmt.Println("Daemon:        running")
	} else {
		fmt.Println("Daemon:        not running")
	}
}
