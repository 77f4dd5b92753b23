// Package status serves the bridge's HTTP status API: registered users,
// health, the stale message guard state and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/staleness"
)

const (
	healthCheckTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// StreakControl is the part of the staleness guard exposed to operators.
type StreakControl interface {
	Count() int
	Threshold() time.Duration
	MaxStreak() int
	Decrement() int
	Reset() int
}

var _ StreakControl = (*staleness.Guard)(nil)

// Server is the status HTTP server.
type Server struct {
	log     *slog.Logger
	store   database.Store
	guard   StreakControl
	metrics *Metrics
	router  *chi.Mux
	server  *http.Server
}

// NewServer builds the router. metrics may be nil, in which case /metrics is not mounted.
func NewServer(log *slog.Logger, addr string, store database.Store, guard StreakControl, metrics *Metrics) *Server {
	s := &Server{
		log:     log.With("component", "status_server"),
		store:   store,
		guard:   guard,
		metrics: metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleUsers)
	r.Get("/health", s.handleHealth)
	r.Route("/staleness", func(r chi.Router) {
		r.Get("/", s.handleStaleness)
		r.Post("/decrement", s.handleStreakDecrement)
		r.Post("/reset", s.handleStreakReset)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.router = r
	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting status server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	return <-errCh
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "Failed to list users", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if users == nil {
		users = []database.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.WarnContext(ctx, "Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type stalenessResponse struct {
	Streak           int     `json:"streak"`
	MaxStreak        int     `json:"max_streak"`
	ThresholdSeconds float64 `json:"threshold_seconds"`
	Blocking         bool    `json:"blocking"`
}

func (s *Server) handleStaleness(w http.ResponseWriter, _ *http.Request) {
	s.writeStreak(w, s.guard.Count())
}

func (s *Server) handleStreakDecrement(w http.ResponseWriter, r *http.Request) {
	streak := s.guard.Decrement()
	s.log.InfoContext(r.Context(), "Stale streak decremented by operator", "streak", streak)
	s.writeStreak(w, streak)
}

func (s *Server) handleStreakReset(w http.ResponseWriter, r *http.Request) {
	streak := s.guard.Reset()
	s.log.InfoContext(r.Context(), "Stale streak reset by operator")
	s.writeStreak(w, streak)
}

func (s *Server) writeStreak(w http.ResponseWriter, streak int) {
	maxStreak := s.guard.MaxStreak()
	writeJSON(w, http.StatusOK, stalenessResponse{
		Streak:           streak,
		MaxStreak:        maxStreak,
		ThresholdSeconds: s.guard.Threshold().Seconds(),
		Blocking:         streak >= maxStreak,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.DebugContext(r.Context(), "Handled status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
