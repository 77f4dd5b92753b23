package bot

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edgard/chatbridge/internal/bot/tasks"
	"github.com/edgard/chatbridge/internal/config"
)

func newTestScheduler(t *testing.T, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) *Scheduler {
	t.Helper()

	s, err := NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, taskMap)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestSchedulerScheduleOnce(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	if err := s.ScheduleOnce("past", time.Now().Add(-time.Second), func(context.Context) { close(done) }); err != nil {
		t.Fatalf("ScheduleOnce() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("one-time job did not run")
	}
}

func TestSchedulerScheduleOnceAtFutureTime(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	at := time.Now().Add(200 * time.Millisecond)
	ran := make(chan time.Time, 1)
	if err := s.ScheduleOnce("future", at, func(context.Context) { ran <- time.Now() }); err != nil {
		t.Fatalf("ScheduleOnce() error = %v", err)
	}

	select {
	case got := <-ran:
		if got.Before(at.Add(-50 * time.Millisecond)) {
			t.Errorf("job ran at %v, before %v", got, at)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("one-time job did not run")
	}
}

func TestSchedulerStartSkipsInvalidTasks(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"disabled":    {Enabled: false, Schedule: "* * * * * *"},
		"unknown":     {Enabled: true, Schedule: "* * * * * *"},
		"no_schedule": {Enabled: true},
		"bad_cron":    {Enabled: true, Schedule: "not a cron"},
		"good":        {Enabled: true, Schedule: "0 0 4 * * *"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"disabled":    noop,
		"no_schedule": noop,
		"bad_cron":    noop,
		"good":        noop,
	}

	s := newTestScheduler(t, cfg, taskMap)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if jobs := s.scheduler.Jobs(); len(jobs) != 1 || jobs[0].Name() != "good" {
		t.Errorf("scheduled jobs = %v, want only good", jobs)
	}
}

func TestSchedulerStopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	started := make(chan struct{})
	finished := make(chan error, 1)
	err := s.ScheduleOnce("blocking", time.Now(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
	})
	if err != nil {
		t.Fatalf("ScheduleOnce() error = %v", err)
	}

	<-started
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := <-finished; got == nil {
		t.Error("job context was not cancelled")
	}
}
