package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/pmcore/internal/config"
	"github.com/me/pmcore/internal/kernel"
	"github.com/me/pmcore/internal/store"
	"github.com/me/pmcore/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKernel(t *testing.T, size int) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(kernel.Config{TableSize: size, Frames: 64}, nil, testLogger())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	return k
}

func testServer(t *testing.T, opts ...Option) (*Server, *kernel.Kernel) {
	t.Helper()
	k := testKernel(t, 8)
	return New(config.DefaultConfig(), k, testLogger(), opts...), k
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv http.Handler, method, path, body string, header http.Header) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v (%s)", method, path, err, w.Body.String())
	}
	return w.Code, env
}

func mustDo(t *testing.T, srv http.Handler, method, path, body string, want int) envelope {
	t.Helper()
	code, env := do(t, srv, method, path, body, nil)
	if code != want {
		t.Fatalf("%s %s: status=%d, want %d, error=%+v", method, path, code, want, env.Error)
	}
	return env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return v
}

func TestDiscovery(t *testing.T) {
	srv, _ := testServer(t)
	env := mustDo(t, srv, "GET", "/api/v1/", "", http.StatusOK)
	if env.Status != "ok" || env.RequestID == "" {
		t.Errorf("envelope = %+v", env)
	}
	data := decode[discoveryResponse](t, env)
	if data.Name != "pmcore API" || len(data.Endpoints) < 10 {
		t.Errorf("discovery = %s with %d endpoints", data.Name, len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, WithRunID("run_live"))
	data := decode[healthResponse](t, mustDo(t, srv, "GET", "/api/v1/health", "", http.StatusOK))
	if data.Status != "healthy" || data.Version != Version || data.GoVersion == "" {
		t.Errorf("health = %+v", data)
	}
	if data.Policy != model.PolicyAging || data.Store != "none" || data.RunID != "run_live" {
		t.Errorf("health = %+v", data)
	}
}

func TestForkAndList(t *testing.T) {
	srv, _ := testServer(t)

	child := decode[model.ProcessInfo](t, mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated))
	if child.PID != 1 || child.Father != 0 || child.State != model.ProcStateReady {
		t.Errorf("child = %+v", child)
	}

	env := mustDo(t, srv, "GET", "/api/v1/procs", "", http.StatusOK)
	procs := decode[[]model.ProcessInfo](t, env)
	if len(procs) != 2 || env.Pagination == nil || env.Pagination.Total != 2 {
		t.Errorf("procs = %+v, pagination %+v", procs, env.Pagination)
	}

	ready := decode[[]model.ProcessInfo](t, mustDo(t, srv, "GET", "/api/v1/procs?state=READY", "", http.StatusOK))
	if len(ready) != 1 || ready[0].PID != 1 {
		t.Errorf("READY procs = %+v", ready)
	}
}

func TestGetProc_Errors(t *testing.T) {
	srv, _ := testServer(t)
	tests := []struct {
		path   string
		status int
		code   model.ErrorCode
	}{
		{"/api/v1/procs/42", http.StatusNotFound, model.ErrNotFound},
		{"/api/v1/procs/abc", http.StatusBadRequest, model.ErrValidation},
		{"/api/v1/procs/-1", http.StatusBadRequest, model.ErrValidation},
	}
	for _, tt := range tests {
		code, env := do(t, srv, "GET", tt.path, "", nil)
		if code != tt.status || env.Error == nil || env.Error.Code != tt.code {
			t.Errorf("GET %s = %d %+v, want %d %s", tt.path, code, env.Error, tt.status, tt.code)
		}
	}
}

func TestFork_TableFull(t *testing.T) {
	k := testKernel(t, 2)
	srv := New(config.DefaultConfig(), k, testLogger())

	mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated)
	code, env := do(t, srv, "POST", "/api/v1/procs/0/fork", "", nil)
	if code != http.StatusServiceUnavailable || env.Error.Code != model.ErrExhausted {
		t.Fatalf("second fork = %d %+v, want 503 RESOURCE_EXHAUSTED", code, env.Error)
	}
	if len(env.Error.Details) != 1 || env.Error.Details[0].Message != "EAGAIN" {
		t.Errorf("details = %+v, want errno EAGAIN", env.Error.Details)
	}
}

func TestTick(t *testing.T) {
	srv, _ := testServer(t)

	st := decode[model.KernelStats](t, mustDo(t, srv, "POST", "/api/v1/tick", "", http.StatusOK))
	if st.Ticks != 1 {
		t.Errorf("Ticks = %d, want 1", st.Ticks)
	}
	st = decode[model.KernelStats](t, mustDo(t, srv, "POST", "/api/v1/tick", `{"count": 3}`, http.StatusOK))
	if st.Ticks != 4 {
		t.Errorf("Ticks = %d, want 4", st.Ticks)
	}
	for _, body := range []string{`{"count": 0}`, `{"count": 10001}`, `{"count": "x"}`} {
		if code, _ := do(t, srv, "POST", "/api/v1/tick", body, nil); code != http.StatusBadRequest {
			t.Errorf("tick %s = %d, want 400", body, code)
		}
	}
}

func TestStopAndResume(t *testing.T) {
	srv, k := testServer(t)

	code, env := do(t, srv, "POST", "/api/v1/stop", "", nil)
	if code != http.StatusConflict || env.Error.Code != model.ErrConflict {
		t.Fatalf("stop idle = %d %+v, want 409", code, env.Error)
	}

	mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated)
	k.Tick()

	resp := decode[stopResponse](t, mustDo(t, srv, "POST", "/api/v1/stop", "", http.StatusOK))
	if resp.Stopped != 1 || resp.Current != 0 {
		t.Errorf("stop = %+v, want stopped 1, current 0", resp)
	}
	stats := decode[model.KernelStats](t, mustDo(t, srv, "GET", "/api/v1/stats", "", http.StatusOK))
	if stats.Last != 1 {
		t.Errorf("stats.Last = %d, want 1", stats.Last)
	}
	info := decode[model.ProcessInfo](t, mustDo(t, srv, "GET", "/api/v1/procs/1", "", http.StatusOK))
	if info.State != model.ProcStateStopped {
		t.Errorf("state = %s, want STOPPED", info.State)
	}

	info = decode[model.ProcessInfo](t, mustDo(t, srv, "POST", "/api/v1/procs/1/resume", "", http.StatusOK))
	if info.State != model.ProcStateReady {
		t.Errorf("state after resume = %s, want READY", info.State)
	}
}

func TestSignal(t *testing.T) {
	srv, k := testServer(t)
	mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated)
	mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated)
	k.Tick()

	info := decode[model.ProcessInfo](t, mustDo(t, srv, "POST", "/api/v1/procs/1/signal", `{"signal": "SIGTERM"}`, http.StatusOK))
	if len(info.Pending) != 1 || info.Pending[0] != "SIGTERM" {
		t.Errorf("pending = %v, want SIGTERM", info.Pending)
	}
	k.Tick()
	info = decode[model.ProcessInfo](t, mustDo(t, srv, "GET", "/api/v1/procs/1", "", http.StatusOK))
	if info.State != model.ProcStateZombie || info.Status != 128+int(model.SIGTERM) {
		t.Errorf("after tick = %s status %d, want ZOMBIE 143", info.State, info.Status)
	}

	info = decode[model.ProcessInfo](t, mustDo(t, srv, "POST", "/api/v1/procs/2/signal", `{"signal": "kill"}`, http.StatusOK))
	if info.State != model.ProcStateZombie {
		t.Errorf("after SIGKILL = %s, want ZOMBIE", info.State)
	}

	code, env := do(t, srv, "POST", "/api/v1/procs/2/signal", `{"signal": "SIGWAT"}`, nil)
	if code != http.StatusBadRequest || env.Error.Details[0].Field != "signal" {
		t.Errorf("bad signal = %d %+v", code, env.Error)
	}
	for _, body := range []string{`{"signal": "KILL"}`, `{"signal": "TERM"}`, `{"signal": "USR1"}`, ""} {
		code, env := do(t, srv, "POST", "/api/v1/procs/0/signal", body, nil)
		if code != http.StatusConflict || len(env.Error.Details) != 1 || env.Error.Details[0].Message != "EPERM" {
			t.Errorf("signal idle %q = %d %+v, want 409 EPERM", body, code, env.Error)
		}
	}
	idle := decode[model.ProcessInfo](t, mustDo(t, srv, "GET", "/api/v1/procs/0", "", http.StatusOK))
	if len(idle.Pending) != 0 {
		t.Errorf("idle pending = %v, want none", idle.Pending)
	}
}

func TestAlarmAndNice(t *testing.T) {
	srv, _ := testServer(t)
	mustDo(t, srv, "POST", "/api/v1/procs/0/fork", "", http.StatusCreated)

	resp := decode[alarmResponse](t, mustDo(t, srv, "POST", "/api/v1/procs/1/alarm", `{"ticks": 5}`, http.StatusOK))
	if resp.Left != 0 {
		t.Errorf("first alarm left = %d, want 0", resp.Left)
	}
	resp = decode[alarmResponse](t, mustDo(t, srv, "POST", "/api/v1/procs/1/alarm", `{"ticks": 10}`, http.StatusOK))
	if resp.Left != 5 {
		t.Errorf("second alarm left = %d, want 5", resp.Left)
	}

	info := decode[model.ProcessInfo](t, mustDo(t, srv, "POST", "/api/v1/procs/1/nice", `{"nice": 100}`, http.StatusOK))
	if info.Nice != 39 {
		t.Errorf("nice = %d, want clamped 39", info.Nice)
	}
	if code, _ := do(t, srv, "POST", "/api/v1/procs/1/nice", `{}`, nil); code != http.StatusBadRequest {
		t.Errorf("nice without value = %d, want 400", code)
	}
	if code, _ := do(t, srv, "POST", "/api/v1/procs/0/alarm", `{"ticks": 5}`, nil); code != http.StatusConflict {
		t.Errorf("alarm on idle = %d, want 409", code)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)

	withID := func(id string) http.Header {
		h := http.Header{}
		h.Set(RequestIDHeader, id)
		return h
	}

	code, env := do(t, srv, "GET", "/api/v1/health", "", withID("trace-42"))
	if code != http.StatusOK || env.RequestID != "trace-42" {
		t.Errorf("echoed request_id = %q (status %d), want trace-42", env.RequestID, code)
	}

	_, env = do(t, srv, "GET", "/api/v1/health", "", withID(strings.Repeat("x", maxRequestIDLen+1)))
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Errorf("oversized id replaced by %q, want req_ prefix", env.RequestID)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
	if got := w.Header().Get(RequestIDHeader); !strings.HasPrefix(got, "req_") {
		t.Errorf("generated %s header = %q", RequestIDHeader, got)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		status int
		want   slog.Level
	}{
		{http.MethodGet, http.StatusOK, slog.LevelDebug},
		{http.MethodPost, http.StatusOK, slog.LevelInfo},
		{http.MethodPost, http.StatusConflict, slog.LevelInfo},
		{http.MethodGet, http.StatusServiceUnavailable, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s, %d) = %v, want %v", tt.method, tt.status, got, tt.want)
		}
	}
}

func TestControlKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ControlKey = "s3cret"
	srv := New(cfg, testKernel(t, 4), testLogger())

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"read needs no key", "GET", "/api/v1/procs", "", http.StatusOK},
		{"missing key", "POST", "/api/v1/tick", "", http.StatusUnauthorized},
		{"wrong key", "POST", "/api/v1/tick", "guess", http.StatusUnauthorized},
		{"right key", "POST", "/api/v1/tick", "s3cret", http.StatusOK},
		{"fork guarded", "POST", "/api/v1/procs/0/fork", "", http.StatusUnauthorized},
		{"fork with key", "POST", "/api/v1/procs/0/fork", "s3cret", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.key != "" {
				h.Set(ControlKeyHeader, tt.key)
			}
			code, env := do(t, srv, tt.method, tt.path, "", h)
			if code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
			if code == http.StatusUnauthorized && env.Error.Code != model.ErrUnauthorized {
				t.Errorf("code = %s, want UNAUTHORIZED", env.Error.Code)
			}
		})
	}
}

func TestRuns_NoStore(t *testing.T) {
	srv, _ := testServer(t)
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/run_x", "/api/v1/runs/run_x/events"} {
		code, env := do(t, srv, "GET", path, "", nil)
		if code != http.StatusServiceUnavailable || env.Error.Code != model.ErrUnavailable {
			t.Errorf("GET %s = %d %+v, want 503", path, code, env.Error)
		}
	}
}

func TestRuns(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := st.CreateRun(ctx, &model.Run{ID: "run_1", Name: "demo", Policy: model.PolicyAging, TableSize: 8, Quantum: 50, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	now := time.Now().UTC()
	if err := st.AppendEvents(ctx, "run_1", []model.Event{
		{Seq: 1, Tick: 0, Kind: model.EventFork, PID: 0, Target: 1, CreatedAt: now},
		{Seq: 2, Tick: 1, Kind: model.EventSwitch, PID: 0, Target: 1, CreatedAt: now},
		{Seq: 3, Tick: 4, Kind: model.EventFork, PID: 1, Target: 2, CreatedAt: now},
	}); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	srv, _ := testServer(t, WithStore(st))

	env := mustDo(t, srv, "GET", "/api/v1/runs", "", http.StatusOK)
	runs := decode[[]model.Run](t, env)
	if len(runs) != 1 || runs[0].ID != "run_1" || env.Pagination.Total != 1 {
		t.Errorf("runs = %+v", runs)
	}

	run := decode[model.Run](t, mustDo(t, srv, "GET", "/api/v1/runs/run_1", "", http.StatusOK))
	if run.Name != "demo" || run.Events != 3 {
		t.Errorf("run = %+v, want demo with 3 events", run)
	}

	env = mustDo(t, srv, "GET", "/api/v1/runs/run_1/events?kind=fork", "", http.StatusOK)
	events := decode[[]model.Event](t, env)
	if len(events) != 2 || events[1].Target != 2 {
		t.Errorf("fork events = %+v", events)
	}

	env = mustDo(t, srv, "GET", "/api/v1/runs/run_1/events?limit=1&offset=1", "", http.StatusOK)
	events = decode[[]model.Event](t, env)
	if len(events) != 1 || events[0].Seq != 2 || !env.Pagination.HasMore {
		t.Errorf("page = %+v, pagination %+v", events, env.Pagination)
	}

	if code, _ := do(t, srv, "GET", "/api/v1/runs/run_nope/events", "", nil); code != http.StatusNotFound {
		t.Errorf("events of unknown run = %d, want 404", code)
	}
	if code, _ := do(t, srv, "GET", "/api/v1/runs?limit=x", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", code)
	}
}

func TestSSEProcs(t *testing.T) {
	srv, k := testServer(t, WithSSEInterval(10*time.Millisecond))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/sse/procs", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	waitEvent := func(name string) procsSnapshot {
		t.Helper()
		for sc.Scan() {
			if sc.Text() != "event: "+name {
				continue
			}
			sc.Scan()
			var snap procsSnapshot
			data := bytes.TrimPrefix(sc.Bytes(), []byte("data: "))
			if err := json.Unmarshal(data, &snap); err != nil {
				t.Fatalf("decode %s: %v", name, err)
			}
			return snap
		}
		t.Fatalf("stream ended before %s: %v", name, sc.Err())
		return procsSnapshot{}
	}

	if snap := waitEvent("init"); snap.Stats.Ticks != 0 || len(snap.Procs) != 1 {
		t.Errorf("init = %+v", snap)
	}
	k.Tick()
	if snap := waitEvent("update"); snap.Stats.Ticks != 1 {
		t.Errorf("update ticks = %d, want 1", snap.Stats.Ticks)
	}
}
