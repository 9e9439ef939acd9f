// Package panel serves the companion panel API and receives browser events
// from the extension over local HTTP.
package panel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runnerr0/visitrelay/internal/events"
	"github.com/runnerr0/visitrelay/internal/flush"
	"github.com/runnerr0/visitrelay/internal/state"
)

const (
	defaultMaxRequestSize = 1 << 20
	shutdownTimeout       = 5 * time.Second
)

// StateStore is the slice of the state coordinator the panel reads and
// writes.
type StateStore interface {
	Load(ctx context.Context) (*state.State, error)
	UpdateSettings(ctx context.Context, fn func(s *state.Settings)) (state.Settings, error)
	Subscribe() (<-chan state.Change, func())
}

// PhaseReporter exposes the flush engine's current phase.
type PhaseReporter interface {
	Phase() flush.Phase
}

// Server is the panel HTTP server. It is an events.Source: events it
// receives go to the attached router.
type Server struct {
	store    StateStore
	phase    PhaseReporter
	gatherer prometheus.Gatherer
	log      slog.Logger
	version  string

	maxRequestSize int64
	allowedOrigins []string
	ratePerMinute  int

	mu     sync.RWMutex
	router *events.Router
}

var _ events.Source = (*Server)(nil)

// Option configures a Server.
type Option func(s *Server)

func WithLogger(log slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

func WithPhaseReporter(p PhaseReporter) Option {
	return func(s *Server) {
		s.phase = p
	}
}

// WithGatherer enables GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithMaxRequestSize(n int64) Option {
	return func(s *Server) {
		s.maxRequestSize = n
	}
}

// WithAllowedOrigins sets the CORS origins allowed to call the API.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRateLimit caps event posts per client IP per minute. 0 disables it.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.ratePerMinute = perMinute
	}
}

func New(store StateStore, opts ...Option) *Server {
	s := &Server{
		store:          store,
		maxRequestSize: defaultMaxRequestSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach implements events.Source.
func (s *Server) Attach(r *events.Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router = r
}

func (s *Server) events() *events.Router {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.router
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/status", s.handleStatus)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Post("/flush", s.handleFlush)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/changes", s.handleChanges)

		r.Route("/events", func(r chi.Router) {
			if s.ratePerMinute > 0 {
				r.Use(httprate.LimitByIP(s.ratePerMinute, time.Minute))
			}
			r.Use(s.requireRouter)
			r.Post("/navigation", s.handleNavigation)
			r.Post("/activation", s.handleActivation)
			r.Post("/started", s.handleStarted)
			r.Post("/installed", s.handleInstalled)
		})
	})

	return r
}

// Serve listens on addr until ctx is done, then shuts down. Open change
// streams end with ctx.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info(ctx, "panel listening", slog.F("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		<-errCh
		return fmt.Errorf("shutting down panel: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug(r.Context(), "request",
			slog.F("method", r.Method),
			slog.F("path", r.URL.Path),
			slog.F("status", ww.Status()),
			slog.F("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) requireRouter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.events() == nil {
			s.writeError(w, http.StatusServiceUnavailable, "event handling not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}
