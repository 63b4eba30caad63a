// Package server exposes report triggering, polling and download over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/caevv/storemon/internal/metrics"
	"github.com/caevv/storemon/internal/store"
)

// Reports is the trigger/poll surface the server needs.
type Reports interface {
	// Trigger starts a report and returns its id.
	Trigger(ctx context.Context) (string, error)

	// Status returns a job; unknown ids wrap uptime.ErrInvalidReportID.
	Status(ctx context.Context, reportID string) (*store.Job, error)

	// List returns recent jobs without rows.
	List(ctx context.Context, limit int) ([]*store.Job, error)
}

// Options configures a Server.
type Options struct {
	Addr string

	// TriggerRate is the sustained number of triggers accepted per second.
	// Zero or less disables limiting.
	TriggerRate  float64
	TriggerBurst int

	Metrics *metrics.Metrics

	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front of the report runner.
type Server struct {
	addr    string
	reports Reports
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	srv       *http.Server
	router    *http.ServeMux
	startTime time.Time

	mu      sync.RWMutex
	started bool
}

// New builds a Server. Routes are registered immediately; nothing listens
// until Start.
func New(reports Reports, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.TriggerRate > 0 {
		limit = rate.Limit(opts.TriggerRate)
	}
	burst := opts.TriggerBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		addr:      opts.Addr,
		reports:   reports,
		logger:    logger,
		metrics:   opts.Metrics,
		limiter:   rate.NewLimiter(limit, burst),
		startTime: time.Now(),
		router:    http.NewServeMux(),
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.registerRoutes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.router.HandleFunc("POST /trigger_report", s.handleTrigger)
	s.router.HandleFunc("GET /get_report", s.handleGetReport)

	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/reports", s.handleListReports)
	s.router.HandleFunc("GET /api/reports/{id}", s.handleReportDetail)

	s.router.Handle("GET /metrics", metricsHandler)
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.router)
}

// Start listens on the configured address and serves until ctx is done or
// the server fails. Listen errors are returned before serving begins.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.started = true
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Large reports are encoded on the request path.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("report API listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server", "reason", context.Cause(ctx))
		return s.Stop(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server error", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop shuts the server down, waiting up to ten seconds for in-flight
// downloads.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.srv == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error during shutdown", "error", err)
		return fmt.Errorf("shutdown failed: %w", err)
	}

	s.started = false
	s.logger.Info("HTTP server stopped")
	return nil
}

// loggingMiddleware logs each request. Scrapes and health checks are logged
// at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch r.URL.Path {
		case "/metrics", "/api/health":
			level = slog.LevelDebug
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if id := r.URL.Query().Get("report_id"); id != "" {
			attrs = append(attrs, "report_id", id)
		}
		s.logger.Log(r.Context(), level, "http request", attrs...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Uptime is the time since New, rounded to seconds.
func (s *Server) Uptime() string {
	return time.Since(s.startTime).Truncate(time.Second).String()
}
