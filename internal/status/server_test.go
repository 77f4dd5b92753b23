package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/staleness"
)

type stubStore struct {
	database.Store

	users   []database.User
	listErr error
	pingErr error
}

func (s stubStore) ListUsers(context.Context) ([]database.User, error) {
	return s.users, s.listErr
}

func (s stubStore) Ping(context.Context) error {
	return s.pingErr
}

func newTestServer(t *testing.T, store database.Store, guard StreakControl) (*Server, *Metrics) {
	t.Helper()

	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(log, "127.0.0.1:0", store, guard, metrics), metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path)
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUsersEndpoint(t *testing.T) {
	t.Parallel()

	store := stubStore{users: []database.User{{ID: "a", UID: 10, Messages: 3, TelegramUserTag: "@alice"}}}
	srv, _ := newTestServer(t, store, staleness.New())

	rec := get(t, srv.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var users []database.User
	if err := json.NewDecoder(rec.Body).Decode(&users); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(users) != 1 || users[0].UID != 10 || users[0].Messages != 3 || users[0].TelegramUserTag != "@alice" {
		t.Errorf("users = %+v", users)
	}
}

func TestUsersEndpointEmptyAndFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, stubStore{}, staleness.New())
	rec := get(t, srv.Handler(), "/")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty store: status = %d body = %q", rec.Code, rec.Body.String())
	}

	srv, _ = newTestServer(t, stubStore{listErr: errors.New("db locked")}, staleness.New())
	rec = get(t, srv.Handler(), "/")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "db locked" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "unhealthy", pingErr: errors.New("closed"), wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newTestServer(t, stubStore{pingErr: tt.pingErr}, staleness.New())
			rec := get(t, srv.Handler(), "/health")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantStatus)
			}
		})
	}
}

func TestStalenessEndpoint(t *testing.T) {
	t.Parallel()

	guard := staleness.New(staleness.WithMaxStreak(2))
	now := time.Now()
	guard.Evaluate(now.Add(-time.Minute), now)
	guard.Evaluate(now.Add(-time.Minute), now)

	srv, _ := newTestServer(t, stubStore{}, guard)
	rec := get(t, srv.Handler(), "/staleness")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body stalenessResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	want := stalenessResponse{Streak: 2, MaxStreak: 2, ThresholdSeconds: 30, Blocking: true}
	if body != want {
		t.Errorf("body = %+v, want %+v", body, want)
	}
}

func TestStreakControlEndpoints(t *testing.T) {
	t.Parallel()

	guard := staleness.New(staleness.WithMaxStreak(2))
	now := time.Now()
	guard.Evaluate(now.Add(-time.Minute), now)
	guard.Evaluate(now.Add(-time.Minute), now)
	srv, _ := newTestServer(t, stubStore{}, guard)

	steps := []struct {
		method     string
		path       string
		wantCode   int
		wantStreak int
	}{
		{http.MethodPost, "/staleness/decrement", http.StatusOK, 1},
		{http.MethodPost, "/staleness/reset", http.StatusOK, 0},
		{http.MethodPost, "/staleness/decrement", http.StatusOK, 0},
		{http.MethodGet, "/staleness/reset", http.StatusMethodNotAllowed, 0},
	}
	for _, st := range steps {
		rec := do(t, srv.Handler(), st.method, st.path)
		if rec.Code != st.wantCode {
			t.Fatalf("%s %s: status = %d, want %d", st.method, st.path, rec.Code, st.wantCode)
		}
		if guard.Count() != st.wantStreak {
			t.Errorf("%s %s: streak = %d, want %d", st.method, st.path, guard.Count(), st.wantStreak)
		}
		if st.wantCode != http.StatusOK {
			continue
		}
		var body stalenessResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Streak != st.wantStreak || body.Blocking {
			t.Errorf("%s %s: body = %+v", st.method, st.path, body)
		}
	}
}

func TestMetricsFollowGuard(t *testing.T) {
	t.Parallel()

	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	guard := staleness.New(staleness.WithMaxStreak(1), staleness.WithObserver(metrics.Observer()))

	now := time.Now()
	for _, sentAt := range []time.Time{now.Add(-time.Hour), now.Add(-time.Hour), now} {
		metrics.ObserveDecision(guard.Evaluate(sentAt, now))
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"fresh decisions", testutil.ToFloat64(metrics.decisions.WithLabelValues("fresh")), 1},
		{"stale decisions", testutil.ToFloat64(metrics.decisions.WithLabelValues("stale")), 1},
		{"blocked decisions", testutil.ToFloat64(metrics.decisions.WithLabelValues("blocked")), 1},
		{"increments", testutil.ToFloat64(metrics.transitions.WithLabelValues("increment")), 1},
		{"resets", testutil.ToFloat64(metrics.transitions.WithLabelValues("reset")), 1},
		{"streak gauge", testutil.ToFloat64(metrics.streak), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, metrics := newTestServer(t, stubStore{}, staleness.New())
	metrics.ObserveModelRequest("gemini", "success", 1500*time.Millisecond)

	rec := get(t, srv.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`chatbridge_staleness_decisions_total{decision="fresh"} 0`,
		`chatbridge_model_request_seconds_count{backend="gemini",outcome="success"} 1`,
		"chatbridge_staleness_streak 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, stubStore{}, staleness.New())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
