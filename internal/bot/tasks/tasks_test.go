package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
)

type fakeStore struct {
	database.Store

	pingErr    error
	vacuumErr  error
	vacuums    int
	pruneKeep  int
	pruneCalls int
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error {
	f.vacuums++
	return f.vacuumErr
}

func (f *fakeStore) PruneHistory(_ context.Context, keep int) (int64, error) {
	f.pruneCalls++
	f.pruneKeep = keep
	return 3, nil
}

func newDeps(store database.Store) TaskDeps {
	cfg := &config.Config{Database: config.DatabaseConfig{MaxHistoryEntries: 42}}
	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Config: cfg,
	}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	tasks := RegisterAllTasks(newDeps(&fakeStore{}))
	for _, name := range []string{SQLMaintenance, HistoryPrune} {
		if tasks[name] == nil {
			t.Errorf("task %q not registered", name)
		}
	}
	for name := range tasks {
		if _, ok := config.DefaultTasks[name]; !ok {
			t.Errorf("task %q has no default schedule", name)
		}
	}
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	if err := newSQLMaintenanceTask(newDeps(store))(context.Background()); err != nil {
		t.Fatalf("task error = %v", err)
	}
	if store.vacuums != 1 {
		t.Errorf("vacuums = %d, want 1", store.vacuums)
	}

	boom := errors.New("disk full")
	store.vacuumErr = boom
	if err := newSQLMaintenanceTask(newDeps(store))(context.Background()); !errors.Is(err, boom) {
		t.Errorf("task error = %v, want wrapped %v", err, boom)
	}
}

func TestSQLMaintenanceSkipsUnreachableDatabase(t *testing.T) {
	t.Parallel()

	store := &fakeStore{pingErr: errors.New("database is closed")}
	if err := newSQLMaintenanceTask(newDeps(store))(context.Background()); err == nil {
		t.Fatal("task error = nil, want ping failure")
	}
	if store.vacuums != 0 {
		t.Errorf("vacuums = %d, want 0", store.vacuums)
	}
}

func TestHistoryPruneTask(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	if err := newHistoryPruneTask(newDeps(store))(context.Background()); err != nil {
		t.Fatalf("task error = %v", err)
	}
	if store.pruneCalls != 1 || store.pruneKeep != 42 {
		t.Errorf("prune calls=%d keep=%d, want 1 and 42", store.pruneCalls, store.pruneKeep)
	}
}
