// Package api exposes the supervisor to the UI/IPC-bridge collaborator over
// HTTP. It is peripheral plumbing: every task semantic lives behind the
// TaskExecutor interface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/taskwarden/internal/events"
	"github.com/mattjoyce/taskwarden/internal/history"
	"github.com/mattjoyce/taskwarden/internal/supervisor"
)

//go:generate mockgen -destination=mocks/mock_executor.go -package=mocks github.com/mattjoyce/taskwarden/internal/api TaskExecutor

// TaskExecutor is the narrow supervisor surface the API consumes.
type TaskExecutor interface {
	ExecuteWithOptions(ctx context.Context, name string, opts supervisor.Options, args ...any) supervisor.TaskResult
	IsAvailable() bool
	State() supervisor.WorkerState
	RecentLogs(n int) ([]string, error)
	LogFilePath() string
}

// RunReader reads recorded task runs.
type RunReader interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on every protected route.
	APIKey string
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	exec      TaskExecutor
	runs      RunReader // optional
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. runs may be nil when history is disabled.
func New(config Config, exec TaskExecutor, runs RunReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		exec:      exec,
		runs:      runs,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.config.Listen,
		Handler: s.Routes(),
		// Package installs can legitimately hold a request open for
		// minutes; the write timeout must outlive the longest task wait.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes configures the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/v1/tasks/{name}", s.handleExecute)
		r.Get("/v1/status", s.handleStatus)
		r.Get("/v1/logs", s.handleLogs)
		r.Get("/v1/history", s.handleHistory)
		r.Get("/v1/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
