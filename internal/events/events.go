// Package events is the inbound port: the browser-side events the relay
// reacts to, and the router that applies the shared gating before handing
// them to the core.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cdr.dev/slog/v3"
)

// SendDataAlarm names the recurring flush timer.
const SendDataAlarm = "sendDataAlarm"

// ErrTabUnavailable marks an activation whose tab could not be resolved
// because it was closed or cannot be inspected. It is expected and benign.
var ErrTabUnavailable = errors.New("tab unavailable")

// benignTabErrors are substrings of tab lookup failures that mean the tab
// went away or is a privileged page.
var benignTabErrors = []string{
	"No tab with id",
	"cannot be scripted",
}

// Activation is a tab switch. Error carries the message of a failed tab
// lookup, in which case URL is empty.
type Activation struct {
	TabID int    `json:"tab_id"`
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Handlers are the core callbacks. Nil handlers are skipped.
type Handlers struct {
	NavigationCompleted func(ctx context.Context, url string)
	TimerTick           func(ctx context.Context, name string)
	UserForceSend       func(ctx context.Context) string
	Started             func(ctx context.Context)
	InstalledOrUpdated  func(ctx context.Context)
}

// Source delivers events to a Router.
type Source interface {
	Attach(r *Router)
}

// IsWebURL reports whether rawURL is an http or https page.
func IsWebURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http:") || strings.HasPrefix(rawURL, "https:")
}

// TabError converts a tab lookup failure message into an error, wrapping
// ErrTabUnavailable when the failure is benign.
func TabError(msg string) error {
	for _, s := range benignTabErrors {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %s", ErrTabUnavailable, msg)
		}
	}
	return errors.New(msg)
}

// Router dispatches events to Handlers.
type Router struct {
	h   Handlers
	log slog.Logger
}

func NewRouter(h Handlers, log slog.Logger) *Router {
	return &Router{h: h, log: log}
}

// Navigation handles a completed top-level page load. Non-web URLs are
// dropped.
func (r *Router) Navigation(ctx context.Context, url string) {
	if !IsWebURL(url) {
		r.log.Debug(ctx, "ignoring non-web navigation", slog.F("url", url))
		return
	}
	if r.h.NavigationCompleted != nil {
		r.h.NavigationCompleted(ctx, url)
	}
}

// Activation handles a tab switch. It is treated as a navigation to the
// tab's URL.
func (r *Router) Activation(ctx context.Context, a Activation) {
	if a.Error != "" {
		err := TabError(a.Error)
		if errors.Is(err, ErrTabUnavailable) {
			r.log.Debug(ctx, "activated tab unavailable", slog.F("tab_id", a.TabID), slog.Error(err))
			return
		}
		r.log.Error(ctx, "resolving activated tab", slog.F("tab_id", a.TabID), slog.Error(err))
		return
	}
	r.Navigation(ctx, a.URL)
}

// Tick handles a timer firing.
func (r *Router) Tick(ctx context.Context, name string) {
	if name != SendDataAlarm {
		r.log.Debug(ctx, "ignoring unknown timer", slog.F("name", name))
		return
	}
	if r.h.TimerTick != nil {
		r.h.TimerTick(ctx, name)
	}
}

// ForceSend handles a user send request and returns its status.
func (r *Router) ForceSend(ctx context.Context) string {
	if r.h.UserForceSend == nil {
		return "Error: sending is not available"
	}
	return r.h.UserForceSend(ctx)
}

// Started handles process or browser startup.
func (r *Router) Started(ctx context.Context) {
	if r.h.Started != nil {
		r.h.Started(ctx)
	}
}

// Installed handles install or update.
func (r *Router) Installed(ctx context.Context) {
	if r.h.InstalledOrUpdated != nil {
		r.h.InstalledOrUpdated(ctx)
	}
}
