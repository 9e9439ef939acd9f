// Package flush decides when buffered visits are sent and drives each send
// through to settling the durable state.
package flush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/runnerr0/visitrelay/internal/delivery"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Phase is the engine's position in a flush.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEvaluating
	PhaseSending
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseSending:
		return "sending"
	case PhaseSettling:
		return "settling"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Trigger names what started an evaluation.
type Trigger string

const (
	TriggerTimer   Trigger = "timer"
	TriggerUser    Trigger = "user"
	TriggerStartup Trigger = "startup"
	TriggerInstall Trigger = "install"
	TriggerLive    Trigger = "live"
	TriggerRerun   Trigger = "rerun"
)

// Reason is how an evaluation ended.
type Reason string

const (
	ReasonNothingBuffered Reason = "nothing_buffered"
	ReasonNotDue          Reason = "not_due"
	ReasonSent            Reason = "sent"
	ReasonDeliveryFailed  Reason = "delivery_failed"
	ReasonBusy            Reason = "busy"
)

// Outcome describes one evaluation.
type Outcome struct {
	Reason  Reason
	Groups  int
	Entries int
	Failed  int
	At      time.Time
}

// StateStore is the slice of the state coordinator the engine needs.
type StateStore interface {
	Load(ctx context.Context) (*state.State, error)
	Settle(ctx context.Context, sentIDs []string, at time.Time) (*state.State, error)
}

// Sender delivers compiled groups.
type Sender interface {
	Send(ctx context.Context, groups []visit.Group) delivery.Report
}

// Engine runs evaluations. At most one evaluation is in flight at a time.
type Engine struct {
	store   StateStore
	sender  Sender
	clock   quartz.Clock
	maxAge  time.Duration
	log     slog.Logger
	metrics *Metrics

	// busy guards entry into an evaluation.
	busy *semaphore.Weighted

	mu    sync.Mutex
	phase Phase
	// rerun is set when a forced trigger arrives while busy. Every forced
	// caller that arrives during the same evaluation shares it.
	rerun *pendingPass
}

// Option configures an Engine.
type Option func(e *Engine)

func WithLogger(log slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(e *Engine) {
		e.maxAge = d
	}
}

// NewEngine returns an idle Engine. reg may be nil.
func NewEngine(store StateStore, sender Sender, reg prometheus.Registerer, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		sender:  sender,
		clock:   quartz.NewReal(),
		maxAge:  DefaultMaxAge,
		metrics: NewMetrics(),
		busy:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.register(reg)
	return e
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// pendingPass is a forced pass queued behind a running evaluation.
type pendingPass struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Evaluate checks the buffer and sends it when forced or due. A non-forced
// request that finds another evaluation running returns ReasonBusy
// immediately. A forced one queues a follow-up pass on the running
// evaluation and waits for its outcome; if ctx ends first it returns
// ReasonBusy and the queued pass still runs.
//
// Once started, a pass is not cancelled by ctx: a delivery the endpoint has
// accepted is always settled.
func (e *Engine) Evaluate(ctx context.Context, trigger Trigger, forced bool) (Outcome, error) {
	e.mu.Lock()
	if !e.busy.TryAcquire(1) {
		var queued *pendingPass
		if forced {
			if e.rerun == nil {
				e.rerun = &pendingPass{done: make(chan struct{})}
			}
			queued = e.rerun
		}
		e.mu.Unlock()
		e.metrics.evaluations.WithLabelValues(string(trigger), string(ReasonBusy)).Inc()
		e.log.Debug(ctx, "flush already in progress",
			slog.F("trigger", trigger),
			slog.F("forced", forced),
		)
		if queued == nil {
			return Outcome{Reason: ReasonBusy}, nil
		}
		select {
		case <-queued.done:
			return queued.outcome, queued.err
		case <-ctx.Done():
			return Outcome{Reason: ReasonBusy}, nil
		}
	}
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	outcome, err := e.evaluate(ctx, trigger, forced)
	for p := e.continueOrRelease(); p != nil; p = e.continueOrRelease() {
		p.outcome, p.err = e.evaluate(ctx, TriggerRerun, true)
		if p.err != nil {
			e.log.Error(ctx, "rerun flush failed", slog.Error(p.err))
		}
		close(p.done)
	}
	return outcome, err
}

// continueOrRelease takes the pending rerun, or releases the guard when
// there is none. Both happen under mu so a rerun request cannot slip in
// between the check and the release.
func (e *Engine) continueOrRelease() *pendingPass {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p := e.rerun; p != nil {
		e.rerun = nil
		return p
	}
	e.busy.Release(1)
	return nil
}

func (e *Engine) evaluate(ctx context.Context, trigger Trigger, forced bool) (Outcome, error) {
	outcome, err := e.pass(ctx, forced)
	e.setPhase(PhaseIdle)

	label := string(outcome.Reason)
	if err != nil {
		label = "error"
	}
	e.metrics.evaluations.WithLabelValues(string(trigger), label).Inc()
	return outcome, err
}

func (e *Engine) pass(ctx context.Context, forced bool) (Outcome, error) {
	e.setPhase(PhaseEvaluating)
	st, err := e.store.Load(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading buffer: %w", err)
	}

	now := e.clock.Now("flush", "evaluate")
	if len(st.Entries) == 0 {
		return Outcome{Reason: ReasonNothingBuffered, At: now}, nil
	}
	if !forced && !Due(st.LastSentAtMillis, now, e.maxAge) {
		e.log.Debug(ctx, "buffer not yet due",
			slog.F("entries", len(st.Entries)),
			slog.F("last_sent_at", st.LastSentAt()),
		)
		return Outcome{Reason: ReasonNotDue, Entries: len(st.Entries), At: now}, nil
	}

	groups := visit.Compile(st.Entries)
	outcome := Outcome{Groups: len(groups), Entries: len(st.Entries), At: now}

	e.setPhase(PhaseSending)
	report := e.sender.Send(ctx, groups)
	if !report.AllSuccessful() {
		// Nothing is settled; every entry stays buffered for the next pass.
		outcome.Reason = ReasonDeliveryFailed
		outcome.Failed = len(report.Failed())
		e.log.Warn(ctx, "flush incomplete, keeping buffer",
			slog.F("groups", outcome.Groups),
			slog.F("failed_groups", outcome.Failed),
			slog.F("entries", outcome.Entries),
		)
		return outcome, nil
	}

	e.setPhase(PhaseSettling)
	if _, err := e.store.Settle(ctx, report.SentIDs(), now); err != nil {
		return outcome, fmt.Errorf("settling flush: %w", err)
	}

	outcome.Reason = ReasonSent
	e.log.Info(ctx, "flush complete",
		slog.F("groups", outcome.Groups),
		slog.F("entries", outcome.Entries),
		slog.F("forced", forced),
	)
	return outcome, nil
}

// Fire evaluates and logs the result instead of returning it.
func (e *Engine) Fire(ctx context.Context, trigger Trigger, forced bool) {
	if _, err := e.Evaluate(ctx, trigger, forced); err != nil {
		e.log.Error(ctx, "flush evaluation failed",
			slog.F("trigger", trigger),
			slog.Error(err),
		)
	}
}

// OnTimer is the recurring check. It does nothing while live mode is on.
func (e *Engine) OnTimer(ctx context.Context) {
	st, err := e.store.Load(ctx)
	if err != nil {
		e.log.Error(ctx, "timer check failed", slog.Error(err))
		return
	}
	if st.Settings.LiveMode {
		e.log.Debug(ctx, "live mode on, skipping timer check")
		e.metrics.evaluations.WithLabelValues(string(TriggerTimer), "suppressed").Inc()
		return
	}
	e.Fire(ctx, TriggerTimer, false)
}

// ForceSend runs a forced evaluation and describes the result for a user.
func (e *Engine) ForceSend(ctx context.Context) string {
	outcome, err := e.Evaluate(ctx, TriggerUser, true)
	if err != nil {
		e.log.Error(ctx, "forced send failed", slog.Error(err))
		return "Error: " + err.Error()
	}
	return StatusText(outcome)
}

// StatusText renders an outcome of a forced send.
func StatusText(o Outcome) string {
	switch o.Reason {
	case ReasonSent:
		return fmt.Sprintf("Data sent: %d visits across %d hostnames.", o.Entries, o.Groups)
	case ReasonNothingBuffered:
		return "Nothing to send."
	case ReasonBusy:
		return "Send already in progress; a follow-up send is queued."
	case ReasonDeliveryFailed:
		return fmt.Sprintf("Error: delivery failed for %d of %d hostnames; visits kept for retry.", o.Failed, o.Groups)
	case ReasonNotDue:
		return "Not due yet."
	default:
		return "Error: unknown outcome " + string(o.Reason)
	}
}
