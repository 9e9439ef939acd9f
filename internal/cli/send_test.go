package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/visitrelay/internal/panel"
)

func TestSend_LocalDeliversAndSettles(t *testing.T) {
	endpoint := newFakeEndpoint(t, http.StatusCreated)
	cfg := testConfig(t)
	cfg.Endpoint.URL = endpoint.URL
	store := newStore(t)
	seedVisits(t, store, "github.com", "go.dev", "github.com")

	cmd := &SendCommand{globals: &GlobalFlags{}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), cfg, store)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Data sent: 3 visits across 2 hostnames.")

	assert.Len(t, endpoint.Requests(), 2)
	st := loadState(t, store)
	assert.Empty(t, st.Entries)
	assert.NotZero(t, st.LastSentAtMillis)
}

func TestSend_NothingBuffered(t *testing.T) {
	endpoint := newFakeEndpoint(t, http.StatusOK)
	cfg := testConfig(t)
	cfg.Endpoint.URL = endpoint.URL

	cmd := &SendCommand{globals: &GlobalFlags{JSON: true}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), cfg, newStore(t))
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Nothing to send.","via":"local"}`, output)
	assert.Empty(t, endpoint.Requests())
}

func TestSend_FailureKeepsVisits(t *testing.T) {
	endpoint := newFakeEndpoint(t, http.StatusInternalServerError)
	cfg := testConfig(t)
	cfg.Endpoint.URL = endpoint.URL
	store := newStore(t)
	seedVisits(t, store, "github.com")

	cmd := &SendCommand{globals: &GlobalFlags{}}
	var err error
	captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), cfg, store)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery failed for 1 of 1 hostnames")

	st := loadState(t, store)
	assert.Len(t, st.Entries, 1)
	assert.Zero(t, st.LastSentAtMillis)
}

func TestSendViaDaemon(t *testing.T) {
	var hits atomic.Int32
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/flush" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(panel.FlushResponse{Status: "Nothing to send."})
	}))
	defer daemon.Close()

	status, err := sendViaDaemon(context.Background(), daemon.URL)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to send.", status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendViaDaemon_ErrorStatus(t *testing.T) {
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer daemon.Close()

	_, err := sendViaDaemon(context.Background(), daemon.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCheckDaemon(t *testing.T) {
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer daemon.Close()

	assert.True(t, checkDaemon(daemon.URL))
	assert.False(t, checkDaemon(daemonURL(testConfig(t))))
}
