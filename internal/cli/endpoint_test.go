package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/runnerr0/visitrelay/internal/delivery"
)

// fakeEndpoint is a tracking endpoint that records every request.
type fakeEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests []delivery.Request
	status   int
}

func newFakeEndpoint(t *testing.T, status int) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{status: status}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req delivery.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		w.WriteHeader(f.status)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeEndpoint) Requests() []delivery.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery.Request(nil), f.requests...)
}
