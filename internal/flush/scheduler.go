package flush

import (
	"context"
	"errors"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

// DefaultInterval is the period of the recurring check.
const DefaultInterval = time.Hour

// Scheduler calls a function on a fixed interval until closed.
type Scheduler struct {
	clock    quartz.Clock
	interval time.Duration
	tick     func(ctx context.Context)
	log      slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	waiter quartz.Waiter
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(s *Scheduler)

func WithSchedulerClock(clock quartz.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithSchedulerLogger(log slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = log
	}
}

// NewScheduler returns a stopped Scheduler that will call tick every
// interval.
func NewScheduler(interval time.Duration, tick func(ctx context.Context), opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		clock:    quartz.NewReal(),
		interval: interval,
		tick:     tick,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking. Calling Start on a running Scheduler replaces its
// timer, so the next tick is a full interval away.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.waiter = s.clock.TickerFunc(ctx, s.interval, func() error {
		s.tick(ctx)
		return nil
	}, "flush", "scheduler")

	s.log.Debug(ctx, "scheduler started", slog.F("interval", s.interval))
}

// Running reports whether the Scheduler has been started and not closed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close stops ticking and waits for an in-flight tick to return.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := s.waiter.Wait()
	s.cancel = nil
	s.waiter = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
