// Package recorder turns completed navigations into buffered visits.
package recorder

import (
	"context"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/visitrelay/internal/flush"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Result is what a navigation did to the state.
type Result string

const (
	// ResultLogged means a visit was appended to the buffer.
	ResultLogged Result = "logged"
	// ResultDeduplicated means the domain matched the last visited one and
	// nothing was written.
	ResultDeduplicated Result = "deduplicated"
	// ResultFiltered means the allowlist rejected the hostname; only the
	// last visited domain was updated.
	ResultFiltered Result = "filtered"
)

// StateStore is the slice of the state coordinator the recorder needs.
type StateStore interface {
	Update(ctx context.Context, fn func(st *state.State) error) (*state.State, error)
}

// Flusher runs a flush evaluation and handles its errors itself.
type Flusher interface {
	Fire(ctx context.Context, trigger flush.Trigger, forced bool)
}

// Recorder applies dedup, the allowlist and live mode to navigations.
type Recorder struct {
	store     StateStore
	flusher   Flusher
	formatter *visit.Formatter
	clock     quartz.Clock
	log       slog.Logger
	metrics   *Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(r *Recorder)

func WithLogger(log slog.Logger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

func WithClock(clock quartz.Clock) Option {
	return func(r *Recorder) {
		r.clock = clock
	}
}

// WithFormatter sets the timestamp format. Defaults to local time.
func WithFormatter(f *visit.Formatter) Option {
	return func(r *Recorder) {
		r.formatter = f
	}
}

// New returns a Recorder. flusher receives live-mode sends and may be nil
// when live mode is unused. reg may be nil.
func New(store StateStore, flusher Flusher, reg prometheus.Registerer, opts ...Option) *Recorder {
	r := &Recorder{
		store:     store,
		flusher:   flusher,
		formatter: visit.NewFormatterIn(time.Local),
		clock:     quartz.NewReal(),
		metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics.register(reg)
	return r
}

// OnNavigation records a completed navigation to rawURL. Errors end
// processing of this navigation only and are logged, never returned.
func (r *Recorder) OnNavigation(ctx context.Context, rawURL string) {
	result, err := r.Record(ctx, rawURL)
	if err != nil {
		r.metrics.visits.WithLabelValues("error").Inc()
		r.log.Error(ctx, "recording navigation failed",
			slog.F("url", rawURL),
			slog.Error(err),
		)
		return
	}
	r.metrics.visits.WithLabelValues(string(result)).Inc()
}

// Record is OnNavigation with the result and error returned.
func (r *Recorder) Record(ctx context.Context, rawURL string) (Result, error) {
	hostname, err := visit.HostnameFromURL(rawURL)
	if err != nil {
		return "", err
	}
	domain := visit.TopLevelDomain(hostname)

	var result Result
	st, err := r.store.Update(ctx, func(st *state.State) error {
		if domain == st.LastVisitedDomain {
			result = ResultDeduplicated
			return nil
		}
		st.LastVisitedDomain = domain

		if !st.Settings.Allows(hostname) {
			result = ResultFiltered
			return nil
		}

		now := r.clock.Now("recorder", "capture")
		st.Entries = append(st.Entries, visit.NewEntry(hostname, now, r.formatter))
		result = ResultLogged
		return nil
	})
	if err != nil {
		return "", err
	}

	switch result {
	case ResultDeduplicated:
		r.log.Debug(ctx, "same domain as last visit, skipping", slog.F("domain", domain))
	case ResultFiltered:
		r.log.Debug(ctx, "hostname not in allowlist, skipping", slog.F("hostname", hostname))
	case ResultLogged:
		r.log.Info(ctx, "visit logged",
			slog.F("hostname", hostname),
			slog.F("buffered", len(st.Entries)),
		)
		if st.Settings.LiveMode {
			r.sendLive(ctx)
		}
	}
	return result, nil
}

// sendLive starts a forced flush without waiting for it.
func (r *Recorder) sendLive(ctx context.Context) {
	if r.flusher == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.flusher.Fire(context.WithoutCancel(ctx), flush.TriggerLive, true)
	}()
}

// Close waits for in-flight live sends. Later live sends are not started.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}
