package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cdr.dev/slog/v3"

	"github.com/runnerr0/visitrelay/internal/events"
	"github.com/runnerr0/visitrelay/internal/state"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Phase   string `json:"phase,omitempty"`
}

// SummaryResponse is the body of GET /api/summary.
type SummaryResponse struct {
	state.Summary
	LastSentAt        *time.Time `json:"last_sent_at,omitempty"`
	LastVisitedDomain string     `json:"last_visited_domain,omitempty"`
}

// FlushResponse is the body of POST /api/flush.
type FlushResponse struct {
	Status string `json:"status"`
}

// SettingsPatch is the body of PUT /api/settings. Absent fields are left
// unchanged.
type SettingsPatch struct {
	AllowlistEnabled *bool     `json:"allowlist_enabled,omitempty"`
	AllowlistDomains *[]string `json:"allowlist_domains,omitempty"`
	LiveMode         *bool     `json:"live_mode,omitempty"`
}

// NavigationRequest is the body of POST /api/events/navigation.
type NavigationRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Status: "ok", Version: s.version}
	if s.phase != nil {
		resp.Phase = s.phase.Phase().String()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Load(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "loading summary", slog.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not read buffered visits")
		return
	}

	resp := SummaryResponse{
		Summary:           state.Summarize(st),
		LastVisitedDomain: st.LastVisitedDomain,
	}
	if st.LastSentAtMillis != 0 {
		t := st.LastSentAt().UTC()
		resp.LastSentAt = &t
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	router := s.events()
	if router == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event handling not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, FlushResponse{Status: router.ForceSend(r.Context())})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Load(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "loading settings", slog.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not read settings")
		return
	}
	s.writeJSON(w, http.StatusOK, withDomains(st.Settings))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if !s.decode(w, r, &patch) {
		return
	}

	settings, err := s.store.UpdateSettings(r.Context(), func(cur *state.Settings) {
		if patch.AllowlistEnabled != nil {
			cur.AllowlistEnabled = *patch.AllowlistEnabled
		}
		if patch.AllowlistDomains != nil {
			cur.AllowlistDomains = *patch.AllowlistDomains
		}
		if patch.LiveMode != nil {
			cur.LiveMode = *patch.LiveMode
		}
	})
	if err != nil {
		s.log.Error(r.Context(), "saving settings", slog.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	s.writeJSON(w, http.StatusOK, withDomains(settings))
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	s.events().Navigation(r.Context(), req.URL)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	var req events.Activation
	if !s.decode(w, r, &req) {
		return
	}
	s.events().Activation(r.Context(), req)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStarted(w http.ResponseWriter, r *http.Request) {
	s.events().Started(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInstalled(w http.ResponseWriter, r *http.Request) {
	s.events().Installed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// withDomains replaces a nil allowlist with an empty one so it encodes as [].
func withDomains(s state.Settings) state.Settings {
	if s.AllowlistDomains == nil {
		s.AllowlistDomains = []string{}
	}
	return s
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(context.Background(), "writing response", slog.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
