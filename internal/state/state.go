// Package state is the single reader and writer of the relay's durable state.
// Every operation re-reads the store; nothing is cached between calls.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/runnerr0/visitrelay/internal/visit"
)

// Storage keys. Values are JSON-encoded.
const (
	KeyVisitLog          = "visit_log"
	KeyLastSentAt        = "last_sent_at"
	KeyLastVisitedDomain = "last_visited_domain"
	KeyAllowlistEnabled  = "allowlist_enabled"
	KeyAllowlistDomains  = "allowlist_domains"
	KeyLiveMode          = "live_mode_enabled"
)

// AllKeys lists every key the coordinator owns.
var AllKeys = []string{
	KeyVisitLog,
	KeyLastSentAt,
	KeyLastVisitedDomain,
	KeyAllowlistEnabled,
	KeyAllowlistDomains,
	KeyLiveMode,
}

// ErrStorage wraps every failure of the underlying store.
var ErrStorage = errors.New("storage failure")

// Settings are the user-controlled switches.
type Settings struct {
	AllowlistEnabled bool     `json:"allowlist_enabled"`
	AllowlistDomains []string `json:"allowlist_domains"`
	LiveMode         bool     `json:"live_mode"`
}

// Allows reports whether hostname may be logged. With the allowlist disabled
// every hostname is allowed; otherwise membership is exact.
func (s Settings) Allows(hostname string) bool {
	if !s.AllowlistEnabled {
		return true
	}
	return slices.Contains(s.AllowlistDomains, hostname)
}

// State is a snapshot of everything persisted.
type State struct {
	Entries []visit.Entry
	// LastSentAtMillis is 0 when nothing has ever been sent.
	LastSentAtMillis int64
	// LastVisitedDomain is empty before the first navigation.
	LastVisitedDomain string
	Settings          Settings
}

// LastSentAt returns the last successful send time, or the zero time.
func (s *State) LastSentAt() time.Time {
	if s.LastSentAtMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastSentAtMillis)
}

func (s *State) clone() *State {
	c := *s
	c.Entries = slices.Clone(s.Entries)
	c.Settings.AllowlistDomains = slices.Clone(s.Settings.AllowlistDomains)
	return &c
}

// decode builds a State from raw store values. Missing keys take their zero
// value.
func decode(raw map[string][]byte) (*State, error) {
	st := &State{}
	targets := map[string]any{
		KeyVisitLog:          &st.Entries,
		KeyLastSentAt:        &st.LastSentAtMillis,
		KeyLastVisitedDomain: &st.LastVisitedDomain,
		KeyAllowlistEnabled:  &st.Settings.AllowlistEnabled,
		KeyAllowlistDomains:  &st.Settings.AllowlistDomains,
		KeyLiveMode:          &st.Settings.LiveMode,
	}
	for key, target := range targets {
		data, ok := raw[key]
		if !ok || len(data) == 0 {
			continue
		}
		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
	}
	return st, nil
}

// encode returns the JSON value of every key.
func encode(st *State) (map[string][]byte, error) {
	entries := st.Entries
	if entries == nil {
		entries = []visit.Entry{}
	}
	domains := st.Settings.AllowlistDomains
	if domains == nil {
		domains = []string{}
	}
	values := map[string]any{
		KeyVisitLog:          entries,
		KeyLastSentAt:        st.LastSentAtMillis,
		KeyLastVisitedDomain: st.LastVisitedDomain,
		KeyAllowlistEnabled:  st.Settings.AllowlistEnabled,
		KeyAllowlistDomains:  domains,
		KeyLiveMode:          st.Settings.LiveMode,
	}
	out := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		out[key] = data
	}
	return out, nil
}
