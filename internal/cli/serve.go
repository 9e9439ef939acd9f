package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/runnerr0/visitrelay/internal/config"
	"github.com/runnerr0/visitrelay/internal/logging"
	"github.com/runnerr0/visitrelay/internal/panel"
	"github.com/runnerr0/visitrelay/internal/relay"
	"github.com/runnerr0/visitrelay/internal/storage"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Port != 0 {
		cfg.Panel.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, closeLog, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closeLog()

	opts, err := storageOptions(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ln, err := net.Listen("tcp", cfg.PanelAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.PanelAddr(), err)
	}

	return c.serve(ctx, cfg, store, ln, log)
}

// serve runs the relay and panel on ln until ctx is done.
func (c *ServeCommand) serve(ctx context.Context, cfg *config.Config, store storage.Store, ln net.Listener, log slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r, err := relay.New(relay.Options{
		Config:     cfg,
		Store:      store,
		Logger:     log,
		Registerer: reg,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := panel.New(r.Coordinator,
		panel.WithLogger(log.Named("panel")),
		panel.WithVersion(c.version),
		panel.WithPhaseReporter(r.Engine),
		panel.WithGatherer(reg),
		panel.WithMaxRequestSize(cfg.Panel.MaxRequestSize),
		panel.WithAllowedOrigins(cfg.Panel.AllowedOrigins),
		panel.WithRateLimit(cfg.Panel.RateLimitPerMinute),
	)
	r.Attach(srv)

	log.Info(ctx, "starting visitrelay",
		slog.F("version", c.version),
		slog.F("storage", cfg.Storage.Driver),
		slog.F("endpoint", cfg.Endpoint.URL),
	)
	r.Start(ctx)

	serveErr := srv.ServeListener(ctx, ln)
	if err := r.Close(); err != nil {
		log.Error(context.Background(), "stopping relay", slog.Error(err))
	}
	log.Info(context.Background(), "visitrelay stopped")
	return serveErr
}
