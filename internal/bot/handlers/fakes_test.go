package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"

	"github.com/edgard/chatbridge/internal/ai"
	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/staleness"
)

const testToken = "123456:TEST"

type apiCall struct {
	Method string
	Params map[string]string
}

// fakeTelegram is a minimal Bot API server recording every call it receives.
type fakeTelegram struct {
	mu      sync.Mutex
	calls   []apiCall
	nextID  int
	fail    map[string]bool
	fileRaw []byte
}

func newFakeTelegram(t *testing.T) (*fakeTelegram, *bot.Bot) {
	t.Helper()

	f := &fakeTelegram{nextID: 1000, fail: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	b, err := bot.New(testToken, bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	if err != nil {
		t.Fatalf("bot.New() error = %v", err)
	}
	return f, b
}

func (f *fakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/") {
		f.mu.Lock()
		data := f.fileRaw
		f.mu.Unlock()
		_, _ = w.Write(data)
		return
	}

	params := requestParams(r)
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	f.nextID++
	id := f.nextID
	failing := f.fail[method]
	fileSize := len(f.fileRaw)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		_, _ = fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: forced failure"}`)
		return
	}

	var result any
	switch method {
	case "sendMessage", "editMessageText":
		chatID, _ := strconv.ParseInt(params["chat_id"], 10, 64)
		msgID := id
		if method == "editMessageText" {
			msgID, _ = strconv.Atoi(params["message_id"])
		}
		result = map[string]any{
			"message_id": msgID,
			"date":       time.Now().Unix(),
			"chat":       map[string]any{"id": chatID, "type": "private"},
			"text":       params["text"],
		}
	case "getFile":
		result = map[string]any{
			"file_id":        params["file_id"],
			"file_unique_id": "unique",
			"file_path":      "voice/file_1.oga",
			"file_size":      fileSize,
		}
	default:
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeTelegram) failOn(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = true
}

func (f *fakeTelegram) serveFile(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileRaw = data
}

// requestParams flattens a Bot API request body, multipart or JSON, into strings.
func requestParams(r *http.Request) map[string]string {
	params := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				params[k] = val
			case float64:
				params[k] = strconv.FormatFloat(val, 'f', -1, 64)
			default:
				encoded, _ := json.Marshal(val)
				params[k] = string(encoded)
			}
		}
		return params
	}

	_ = r.ParseMultipartForm(1 << 20)
	for k := range r.Form {
		params[k] = r.Form.Get(k)
	}
	return params
}

// Calls returns recorded calls, skipping chat actions which are sent asynchronously.
func (f *fakeTelegram) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]apiCall, 0, len(f.calls))
	for _, c := range f.calls {
		if c.Method != "sendChatAction" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) CallsTo(method string) []apiCall {
	var out []apiCall
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeStore struct {
	database.Store

	mu        sync.Mutex
	upsertErr error
	users     map[int64]*database.User
	history   []database.HistoryEntry
	messages  map[int64]int
	warns     map[int64]int
	deleted   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]*database.User{},
		messages: map[int64]int{},
		warns:    map[int64]int{},
	}
}

func (s *fakeStore) UpsertUser(_ context.Context, uid int64, tag string) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	u, ok := s.users[uid]
	if !ok {
		u = &database.User{ID: fmt.Sprintf("id-%d", uid), UID: uid, CreatedAt: time.Unix(0, 0)}
		s.users[uid] = u
	}
	u.TelegramUserTag = tag
	copied := *u
	return &copied, nil
}

func (s *fakeStore) ListUsers(context.Context) ([]database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *fakeStore) IncrementMessages(_ context.Context, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[uid]++
	return nil
}

func (s *fakeStore) IncrementWarns(_ context.Context, uid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warns[uid]++
	return nil
}

func (s *fakeStore) SaveHistoryEntry(_ context.Context, e *database.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, *e)
	return nil
}

func (s *fakeStore) GetRecentHistory(context.Context, int) ([]database.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.HistoryEntry(nil), s.history...), nil
}

func (s *fakeStore) DeleteAllHistory(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.deleted = true
	return nil
}

type fakeAI struct {
	reply      string
	err        error
	transcript string
	prompts    []string
	audio      []byte
}

func (f *fakeAI) GenerateReply(_ context.Context, _ []database.HistoryEntry, prompt string) (ai.Reply, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return ai.Reply{Elapsed: time.Millisecond}, f.err
	}
	return ai.Reply{Text: f.reply, Elapsed: 10 * time.Millisecond}, nil
}

func (f *fakeAI) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.audio = audio
	return f.transcript, nil
}

func (f *fakeAI) Backend() string { return "fake" }

type scheduledJob struct {
	name string
	at   time.Time
	fn   func(ctx context.Context)
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (s *fakeScheduler) ScheduleOnce(name string, at time.Time, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{name: name, at: at, fn: fn})
	return nil
}

type fakeMetrics struct {
	decisions []staleness.Kind
	outcomes  []string
}

func (m *fakeMetrics) ObserveDecision(d staleness.Decision) { m.decisions = append(m.decisions, d.Kind) }

func (m *fakeMetrics) ObserveModelRequest(_, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: testToken, AdminUserID: 1},
		Database: config.DatabaseConfig{HistoryWindow: 20},
		Staleness: config.StalenessConfig{
			Threshold: config.DefaultStaleThreshold,
			MaxStreak: config.DefaultStaleMaxStreak,
			NoticeTTL: config.DefaultStaleNoticeTTL,
		},
		Bridge: config.BridgeConfig{
			Placeholder:      config.DefaultBridgePlaceholder,
			Note:             "be nice",
			Clocks:           config.DefaultClocks,
			MaxVoiceBytes:    1024,
			ProcessTimeout:   time.Minute,
			ShowTimingFooter: true,
		},
		Messages: config.DefaultMessages,
	}
}

type testEnv struct {
	tg      *fakeTelegram
	bot     *bot.Bot
	store   *fakeStore
	ai      *fakeAI
	sched   *fakeScheduler
	metrics *fakeMetrics
	deps    HandlerDeps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tg, b := newFakeTelegram(t)
	env := &testEnv{
		tg:      tg,
		bot:     b,
		store:   newFakeStore(),
		ai:      &fakeAI{reply: "hello back"},
		sched:   &fakeScheduler{},
		metrics: &fakeMetrics{},
	}
	env.deps = HandlerDeps{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:    testConfig(),
		Store:     env.store,
		AI:        env.ai,
		Guard:     staleness.New(),
		Metrics:   env.metrics,
		Scheduler: env.sched,
	}
	return env
}
