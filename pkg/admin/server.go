// Package admin serves health, statistics, metrics and a live result tail
// for a running thread pool.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	client "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/failfast"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/sink"
	"github.com/fluxorio/symphony/pkg/tcp"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

// StatsSource reports pool statistics. *threadpool.ThreadPool implements it.
type StatsSource interface {
	Stats() threadpool.Stats
	Running() bool
}

// ListenerSource reports listener statistics. *tcp.Listener implements it.
type ListenerSource interface {
	Metrics() tcp.ServerMetrics
}

// ResultLookup finds an audited result. sink.SQL and sink.Pgx implement it.
type ResultLookup interface {
	Lookup(ctx context.Context, jobID string) (sink.Record, error)
}

// Config configures the admin server. Pool is required; the other sources
// add their routes only when set.
type Config struct {
	Addr string

	Pool     StatsSource
	Listener ListenerSource
	Results  ResultLookup
	Tail     *Tail

	// Gatherer backs /metrics. Nil means prometheus.DefaultRegistry.
	Gatherer client.Gatherer

	// Auth guards everything except /healthz and /metrics. Nil leaves them open.
	Auth *Auth

	Logger core.Logger
}

// Server is the admin HTTP server.
type Server struct {
	config     Config
	logger     core.Logger
	handler    http.Handler
	httpServer *http.Server

	mu   sync.RWMutex
	addr string
}

// NewServer builds the routes for config.
func NewServer(config Config) *Server {
	failfast.NotNil(config.Pool, "pool")

	s := &Server{
		config: config,
		logger: config.Logger,
	}
	if s.logger == nil {
		s.logger = core.NewDefaultLogger()
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	guard := s.config.Auth.Middleware

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", prometheus.Handler(s.config.Gatherer))
	mux.Handle("GET /stats", guard(http.HandlerFunc(s.handleStats)))
	if s.config.Listener != nil {
		mux.Handle("GET /listener", guard(http.HandlerFunc(s.handleListener)))
	}
	if s.config.Results != nil {
		mux.Handle("GET /results/{id}", guard(http.HandlerFunc(s.handleResult)))
	}
	if s.config.Tail != nil {
		mux.Handle("GET /ws/results", guard(s.config.Tail))
	}

	var h http.Handler = mux
	h = securityHeaders(h)
	h = accessLog(s.logger, h)
	h = recovery(s.logger, h)
	h = requestID(h)
	return h
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.config.Pool.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Pool.Stats())
}

func (s *Server) handleListener(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Listener.Metrics())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.config.Results.Lookup(r.Context(), id)
	switch {
	case errors.Is(err, sink.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no result for job %s", id))
	case err != nil:
		s.logger.Errorf("lookup result %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "lookup failed")
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.config.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Infof("admin listening on %s", s.addr)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin serve: %w", err)
	}
	return nil
}

// ListeningAddr returns the bound address, or "" before Start has bound.
func (s *Server) ListeningAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Shutdown disconnects tail clients and stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Tail != nil {
		s.config.Tail.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
