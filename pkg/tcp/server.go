// Package tcp accepts connections and hands each one to a thread pool as a job.
package tcp

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("listener already started")

// Connection outcomes reported to metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Submitter is the part of the thread pool the listener needs.
type Submitter interface {
	TrySubmit(job threadpool.Job) error
}

// JobFactory turns an accepted connection into a job.
// The job owns the connection and must close it.
type JobFactory func(conn net.Conn) threadpool.Job

// Config configures a Listener.
type Config struct {
	// Addr is the host:port to listen on. ":0" picks a free port.
	Addr string

	// MaxConns bounds connections queued or executing. Zero means unbounded.
	MaxConns int

	// ServeLimit stops the accept loop after this many connections were
	// handed to the pool. Zero means unlimited.
	ServeLimit int

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	Logger  core.Logger
	Metrics *prometheus.Metrics
}

// DefaultConfig returns an unbounded plain TCP configuration for addr.
func DefaultConfig(addr string) Config {
	return Config{Addr: addr}
}

// ServerMetrics provides listener statistics.
type ServerMetrics struct {
	Addr       string `json:"addr"`
	Accepted   int64  `json:"accepted"` // handed to the pool
	Rejected   int64  `json:"rejected"` // closed without being served
	Active     int64  `json:"active"`   // queued or executing
	MaxConns   int    `json:"max_conns"`
	ServeLimit int    `json:"serve_limit"`

	Backpressure *BackpressureMetrics `json:"backpressure,omitempty"`
}
