package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	ctx := context.Background()
	_, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, store)
}

// executeWithStore runs the list logic against a provided store (used by tests).
func (c *ListCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	if c.Limit < 0 {
		return fmt.Errorf("--limit must be 0 or greater")
	}

	st, err := state.New(store, nil).Load(ctx)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	entries := c.filter(st.Entries)

	if c.globals != nil && c.globals.JSON {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No buffered visits.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-30s %s\n", e.Timestamp, e.Hostname, e.ID)
	}
	if len(entries) < len(st.Entries) {
		fmt.Printf("\nShowing %d of %s buffered visits.\n", len(entries), formatNumber(int64(len(st.Entries))))
	}
	return nil
}

// filter keeps entries for the requested hostnames, newest first, up to
// the limit.
func (c *ListCommand) filter(all []visit.Entry) []visit.Entry {
	wanted := make(map[string]bool, len(c.Hostname))
	for _, h := range c.Hostname {
		wanted[visit.NormalizeHostname(h)] = true
	}

	out := []visit.Entry{}
	for i := len(all) - 1; i >= 0; i-- {
		if len(wanted) > 0 && !wanted[all[i].Hostname] {
			continue
		}
		out = append(out, all[i])
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out
}
