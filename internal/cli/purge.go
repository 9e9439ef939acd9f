package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}
	if err := c.confirm(); err != nil {
		return err
	}

	ctx := context.Background()
	_, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, store)
}

// confirm prompts for the confirmation text unless --force.
func (c *PurgeCommand) confirm() error {
	if c.Force {
		return nil
	}

	fmt.Println("⚠ WARNING: This will permanently drop ALL buffered visits.")
	fmt.Println("  - Visits not yet sent are lost")
	fmt.Println("  - Settings and the last send time are kept")
	fmt.Println()
	fmt.Println("This action cannot be undone.")
	fmt.Println()
	fmt.Print(`Type "PURGE" to confirm: `)

	var in io.Reader = os.Stdin
	if c.stdin != nil {
		in = c.stdin
	}
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return fmt.Errorf("aborted: no input received")
	}
	if strings.TrimSpace(scanner.Text()) != "PURGE" {
		return fmt.Errorf("aborted: confirmation text did not match")
	}
	return nil
}

// executeWithStore drops the buffer of a provided store (used by tests).
func (c *PurgeCommand) executeWithStore(ctx context.Context, store storage.Store) error {
	n, err := state.New(store, nil).Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"purged":  n,
			"message": "buffer emptied",
		})
	}

	fmt.Printf("Purged %s buffered visits.\n", formatNumber(int64(n)))
	return nil
}
