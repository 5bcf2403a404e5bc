package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	client "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/sink"
	"github.com/fluxorio/symphony/pkg/tcp"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

type fakePool struct {
	stats   threadpool.Stats
	running bool
}

func (p fakePool) Stats() threadpool.Stats { return p.stats }
func (p fakePool) Running() bool           { return p.running }

type fakeListener struct{}

func (fakeListener) Metrics() tcp.ServerMetrics {
	return tcp.ServerMetrics{Addr: "127.0.0.1:1666", Accepted: 2, ServeLimit: 2}
}

type fakeResults map[string]sink.Record

func (f fakeResults) Lookup(_ context.Context, id string) (sink.Record, error) {
	if id == "broken" {
		return sink.Record{}, errors.New("database is gone")
	}
	rec, ok := f[id]
	if !ok {
		return sink.Record{}, sink.ErrNotFound
	}
	return rec, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Pool == nil {
		cfg.Pool = fakePool{running: true}
	}
	cfg.Logger = core.NopLogger()
	return NewServer(cfg)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_FailFast_NilPoolPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for nil pool")
		}
	}()
	NewServer(Config{Logger: core.NopLogger()})
}

func TestServer_Health(t *testing.T) {
	for _, tt := range []struct {
		running bool
		code    int
		status  string
	}{
		{true, http.StatusOK, "ok"},
		{false, http.StatusServiceUnavailable, "stopping"},
	} {
		s := newTestServer(t, Config{Pool: fakePool{running: tt.running}})
		rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != tt.code {
			t.Errorf("running=%v: code = %d, want %d", tt.running, rec.Code, tt.code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != tt.status {
			t.Errorf("running=%v: status = %q, want %q", tt.running, body["status"], tt.status)
		}
	}
}

func TestServer_StatsFromRealPool(t *testing.T) {
	pool, err := threadpool.New(2, threadpool.WithLogger(core.NopLogger()))
	if err != nil {
		t.Fatalf("threadpool.New: %v", err)
	}
	for i := 0; i < 5; i++ {
		pool.Submit(threadpool.Func(func() threadpool.JobResult {
			return threadpool.JobResult{Request: "r", Response: "ok"}
		}))
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s := newTestServer(t, Config{Pool: pool})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var stats threadpool.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Workers != 2 || stats.Watchers != 2 || stats.Completed != 5 || stats.Delivered != 5 || stats.Running {
		t.Errorf("stats = %+v", stats)
	}

	health := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz after Close = %d, want 503", health.Code)
	}
}

func TestServer_CommonHeaders(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get(core.RequestIDHeader) == "" {
		t.Errorf("missing generated %s", core.RequestIDHeader)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing nosniff header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(core.RequestIDHeader, "req-42")
	rec = do(t, s.Handler(), req)
	if got := rec.Header().Get(core.RequestIDHeader); got != "req-42" {
		t.Errorf("%s = %q, want req-42", core.RequestIDHeader, got)
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := client.NewRegistry()
	m := prometheus.NewMetrics(reg)
	m.RecordSubmitted()

	s := newTestServer(t, Config{Gatherer: reg})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "symphony_jobs_submitted_total 1") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestServer_Results(t *testing.T) {
	results := fakeResults{"job-1": {JobID: "job-1", Request: "GET /", WorkerID: 3}}
	s := newTestServer(t, Config{Results: results})

	tests := []struct {
		path string
		code int
	}{
		{"/results/job-1", http.StatusOK},
		{"/results/missing", http.StatusNotFound},
		{"/results/broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: code = %d, want %d", tt.path, rec.Code, tt.code)
		}
	}

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/results/job-1", nil))
	var got sink.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.JobID != "job-1" || got.WorkerID != 3 {
		t.Errorf("record = %+v", got)
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	bare := newTestServer(t, Config{})
	for _, path := range []string{"/listener", "/results/job-1", "/ws/results"} {
		if rec := do(t, bare.Handler(), httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusNotFound {
			t.Errorf("%s without a source: code = %d, want 404", path, rec.Code)
		}
	}

	s := newTestServer(t, Config{Listener: fakeListener{}})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/listener", nil))
	var m tcp.ServerMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode listener metrics: %v", err)
	}
	if m.Accepted != 2 || m.ServeLimit != 2 {
		t.Errorf("listener metrics = %+v", m)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/stats", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /stats code = %d, want 405", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := newTestServer(t, Config{Addr: "127.0.0.1:0"})

	startErrCh := make(chan error, 1)
	go func() { startErrCh <- s.Start() }()

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		addr = s.ListeningAddr()
		if addr != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("admin server did not start listening in time")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz code = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-startErrCh:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after Shutdown")
	}
}
