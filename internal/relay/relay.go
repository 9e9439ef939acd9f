// Package relay wires the visit recorder, flush engine and scheduler to the
// state coordinator and registers them as event handlers.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/delivery"
	"github.com/runnerr0/visitrelay/internal/events"
	"github.com/runnerr0/visitrelay/internal/flush"
	"github.com/runnerr0/visitrelay/internal/recorder"
	"github.com/runnerr0/visitrelay/internal/state"
	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Options are the collaborators of a Relay. Config and Store are required.
type Options struct {
	Config     *config.Config
	Store      storage.Store
	Logger     slog.Logger
	Registerer prometheus.Registerer
	Clock      quartz.Clock
	HTTPClient *http.Client
}

// Relay is the running core.
type Relay struct {
	Coordinator *state.Coordinator
	Recorder    *recorder.Recorder
	Delivery    *delivery.Client
	Engine      *flush.Engine
	Scheduler   *flush.Scheduler
	Router      *events.Router

	log slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

// New builds a Relay. Nothing runs until Start.
func New(opts Options) (*Relay, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, fmt.Errorf("relay: config and store are required")
	}
	cfg := opts.Config
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	formatter, err := visit.NewFormatter(cfg.Timestamps.Zone)
	if err != nil {
		return nil, fmt.Errorf("timestamp format: %w", err)
	}

	r := &Relay{log: opts.Logger, baseCtx: context.Background()}

	r.Coordinator = state.New(opts.Store, opts.Registerer,
		state.WithLogger(opts.Logger.Named("state")))

	deliveryOpts := []delivery.Option{delivery.WithLogger(opts.Logger.Named("delivery"))}
	if opts.HTTPClient != nil {
		deliveryOpts = append(deliveryOpts, delivery.WithHTTPClient(opts.HTTPClient))
	}
	deliveryOpts = append(deliveryOpts, delivery.WithTimeout(cfg.SendTimeout()))
	r.Delivery = delivery.New(cfg.Endpoint.URL, cfg.Endpoint.Username, cfg.Endpoint.EventPrefix,
		opts.Registerer, deliveryOpts...)

	r.Engine = flush.NewEngine(r.Coordinator, r.Delivery, opts.Registerer,
		flush.WithClock(opts.Clock),
		flush.WithMaxAge(cfg.MaxAge()),
		flush.WithLogger(opts.Logger.Named("flush")),
	)

	r.Recorder = recorder.New(r.Coordinator, r.Engine, opts.Registerer,
		recorder.WithClock(opts.Clock),
		recorder.WithFormatter(formatter),
		recorder.WithLogger(opts.Logger.Named("recorder")),
	)

	r.Router = events.NewRouter(events.Handlers{
		NavigationCompleted: r.Recorder.OnNavigation,
		TimerTick: func(ctx context.Context, _ string) {
			r.Engine.OnTimer(ctx)
		},
		UserForceSend: r.Engine.ForceSend,
		Started: func(ctx context.Context) {
			r.Engine.Fire(ctx, flush.TriggerStartup, false)
		},
		InstalledOrUpdated: func(ctx context.Context) {
			r.Scheduler.Start(r.base())
			r.Engine.Fire(ctx, flush.TriggerInstall, false)
		},
	}, opts.Logger.Named("events"))

	r.Scheduler = flush.NewScheduler(cfg.CheckInterval(), func(ctx context.Context) {
		r.Router.Tick(ctx, events.SendDataAlarm)
	},
		flush.WithSchedulerClock(opts.Clock),
		flush.WithSchedulerLogger(opts.Logger.Named("scheduler")),
	)

	return r, nil
}

func (r *Relay) base() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baseCtx
}

// Attach registers the router with every source.
func (r *Relay) Attach(sources ...events.Source) {
	for _, s := range sources {
		s.Attach(r.Router)
	}
}

// Start runs the recurring timer under ctx and delivers a startup event.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	r.Scheduler.Start(ctx)
	r.Router.Started(ctx)
	r.log.Info(ctx, "relay started")
}

// Close stops the timer and waits for background sends.
func (r *Relay) Close() error {
	if err := r.Scheduler.Close(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return r.Recorder.Close()
}
