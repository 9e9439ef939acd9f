package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
)

// Execute implements the go-flags Commander interface for AllowlistCommand.
func (c *AllowlistCommand) Execute(args []string) error {
	ctx := context.Background()
	_, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, store)
}

// executeWithStore applies the requested edits, if any, and prints the
// resulting allowlist.
func (c *AllowlistCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	if c.Enable && c.Disable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	coord := state.New(store, nil)
	var (
		settings state.Settings
		err      error
	)
	if c.Enable || c.Disable || len(c.Add) > 0 || len(c.Remove) > 0 {
		settings, err = coord.UpdateSettings(ctx, func(s *state.Settings) {
			if c.Enable {
				s.AllowlistEnabled = true
			}
			if c.Disable {
				s.AllowlistEnabled = false
			}
			s.AllowlistDomains = append(s.AllowlistDomains, c.Add...)
			s.AllowlistDomains = without(s.AllowlistDomains, c.Remove)
		})
	} else {
		settings, err = coord.Settings(ctx)
	}
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}

	domains := settings.AllowlistDomains
	if domains == nil {
		domains = []string{}
	}
	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"enabled": settings.AllowlistEnabled,
			"domains": domains,
		})
	}

	fmt.Printf("Allowlist: %s\n", onOff(settings.AllowlistEnabled))
	if len(domains) == 0 {
		fmt.Println("No hostnames listed.")
		return nil
	}
	for _, d := range domains {
		fmt.Printf("  %s\n", d)
	}
	return nil
}

// without drops every entry of remove from list, comparing trimmed values.
func without(list, remove []string) []string {
	if len(remove) == 0 {
		return list
	}
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[strings.TrimSpace(r)] = true
	}
	out := list[:0:0]
	for _, d := range list {
		if !drop[strings.TrimSpace(d)] {
			out = append(out, d)
		}
	}
	return out
}

// Execute implements the go-flags Commander interface for LiveCommand.
func (c *LiveCommand) Execute(args []string) error {
	ctx := context.Background()
	_, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, store)
}

func (c *LiveCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	if c.On && c.Off {
		return fmt.Errorf("--on and --off are mutually exclusive")
	}

	coord := state.New(store, nil)
	var (
		settings state.Settings
		err      error
	)
	if c.On || c.Off {
		settings, err = coord.UpdateSettings(ctx, func(s *state.Settings) {
			s.LiveMode = c.On
		})
	} else {
		settings, err = coord.Settings(ctx)
	}
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{"live_mode": settings.LiveMode})
	}
	fmt.Printf("Live mode: %s\n", onOff(settings.LiveMode))
	return nil
}
