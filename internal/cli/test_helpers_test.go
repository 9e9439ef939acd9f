package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/storage/storagetest"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// testConfig returns defaults pointing the panel at a port nothing listens
// on, so daemon checks fail fast.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.DefaultConfig()
	cfg.Storage.Path = t.TempDir()
	cfg.Panel.Port = port
	cfg.Timestamps.Zone = visit.ZoneUTC
	return cfg
}

// seedVisits appends one buffered entry per hostname.
func seedVisits(t *testing.T, store storage.Store, hostnames ...string) {
	t.Helper()
	f, err := visit.NewFormatter(visit.ZoneUTC)
	require.NoError(t, err)
	at := time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC)

	_, err = state.New(store, nil).Update(context.Background(), func(st *state.State) error {
		for i, h := range hostnames {
			st.Entries = append(st.Entries, visit.NewEntry(h, at.Add(time.Duration(i)*time.Minute), f))
		}
		return nil
	})
	require.NoError(t, err)
}

func loadState(t *testing.T, store storage.Store) *state.State {
	t.Helper()
	st, err := state.New(store, nil).Load(context.Background())
	require.NoError(t, err)
	return st
}

func newStore(t *testing.T) *storage.SQLiteStore {
	return storagetest.NewSQLite(t)
}
