package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/chatbridge/internal/ai"
	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/staleness"
)

// Metrics receives bridge events worth counting. Implemented by status.Metrics.
type Metrics interface {
	ObserveDecision(d staleness.Decision)
	ObserveModelRequest(backend, outcome string, elapsed time.Duration)
}

// OnceScheduler runs a function a single time at a given moment. Implemented by bot.Scheduler.
type OnceScheduler interface {
	ScheduleOnce(name string, at time.Time, fn func(ctx context.Context)) error
}

// HandlerDeps provides dependencies for Telegram handlers and middleware.
// Metrics and Scheduler are optional.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	AI        ai.Client
	Guard     *staleness.Guard
	Metrics   Metrics
	Scheduler OnceScheduler
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(staleness.Decision) {}
func (noopMetrics) ObserveModelRequest(string, string, time.Duration) {}

func (d HandlerDeps) metrics() Metrics {
	if d.Metrics == nil {
		return noopMetrics{}
	}
	return d.Metrics
}
