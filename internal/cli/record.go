package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/events"
	"github.com/runnerr0/visitrelay/internal/recorder"
	"github.com/runnerr0/visitrelay/internal/relay"
	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Execute implements the go-flags Commander interface for RecordCommand.
func (c *RecordCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for record command")
	}

	ctx := context.Background()
	cfg, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, cfg, store)
}

// executeWithStore runs the record logic against a provided store (used by tests).
func (c *RecordCommand) executeWithStore(ctx context.Context, cfg *config.Config, store storage.Store) error {
	if !events.IsWebURL(c.URL) {
		return fmt.Errorf("invalid URL %q: only http and https pages are recorded", c.URL)
	}
	hostname, err := visit.HostnameFromURL(c.URL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", c.URL, err)
	}

	r, err := relay.New(relay.Options{
		Config: cfg,
		Store:  store,
		Logger: commandLogger(cfg, c.globals),
	})
	if err != nil {
		return err
	}
	// Close waits for a live-mode send to finish.
	defer r.Close()

	result, err := r.Recorder.Record(ctx, c.URL)
	if err != nil {
		return fmt.Errorf("recording visit: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"hostname": hostname,
			"result":   string(result),
		})
	}

	switch result {
	case recorder.ResultLogged:
		fmt.Printf("Recorded visit to %s\n", hostname)
	case recorder.ResultDeduplicated:
		fmt.Printf("Skipped %s: same site as the previous visit\n", hostname)
	case recorder.ResultFiltered:
		fmt.Printf("Skipped %s: not on the allowlist\n", hostname)
	}
	return nil
}
