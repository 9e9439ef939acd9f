package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cdr.dev/slog/v3"

	"github.com/runnerr0/visitrelay/internal/state"
)

// keepAliveInterval spaces comment lines that keep idle streams open
// through proxies.
const keepAliveInterval = 30 * time.Second

// handleChanges streams state changes as server-sent events. The first
// event is the current summary so a panel can render without a second
// request.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			s.log.Warn(r.Context(), "encoding change event", slog.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if st, err := s.store.Load(r.Context()); err == nil {
		if !send("summary", state.Summarize(st)) {
			return
		}
	} else {
		s.log.Error(r.Context(), "loading initial summary", slog.Error(err))
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if !send("change", change) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
