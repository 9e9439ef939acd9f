package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/panel"
	"github.com/runnerr0/visitrelay/internal/relay"
	"github.com/runnerr0/visitrelay/internal/storage"
)

type sendJSON struct {
	Status string `json:"status"`
	Via    string `json:"via"`
}

// Execute implements the go-flags Commander interface for SendCommand.
func (c *SendCommand) Execute(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !c.Local && checkDaemon(daemonURL(cfg)) {
		status, err := sendViaDaemon(ctx, daemonURL(cfg))
		if err != nil {
			return err
		}
		return c.report(status, "daemon")
	}

	cfg, store, err := openStore(ctx, c.globals)
	if err != nil {
		return err
	}
	defer store.Close()

	return c.executeWithStore(ctx, cfg, store)
}

// executeWithStore sends from this process against a provided store.
func (c *SendCommand) executeWithStore(ctx context.Context, cfg *config.Config, store storage.Store) error {
	r, err := relay.New(relay.Options{
		Config: cfg,
		Store:  store,
		Logger: commandLogger(cfg, c.globals),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	return c.report(r.Engine.ForceSend(ctx), "local")
}

func (c *SendCommand) report(status, via string) error {
	if strings.HasPrefix(status, "Error") {
		return errors.New(status)
	}
	if c.globals != nil && c.globals.JSON {
		return printJSON(sendJSON{Status: status, Via: via})
	}
	fmt.Println(status)
	return nil
}

// sendViaDaemon asks a running daemon to send, so its engine serializes the
// send with its own timer.
func sendViaDaemon(ctx context.Context, baseURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/flush", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("contacting daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daemon returned %s", resp.Status)
	}
	var body panel.FlushResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding daemon response: %w", err)
	}
	return body.Status, nil
}
