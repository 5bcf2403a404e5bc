package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/failfast"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
	"github.com/fluxorio/symphony/pkg/threadpool"
)

// Listener accepts TCP connections and submits one job per connection.
type Listener struct {
	config       Config
	pool         Submitter
	factory      JobFactory
	logger       core.Logger
	metrics      *prometheus.Metrics
	backpressure *BackpressureController

	mu       sync.RWMutex
	listener net.Listener
	addr     string

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	accepted atomic.Int64
	rejected atomic.Int64
	active   atomic.Int64
}

// NewListener creates a listener feeding pool with jobs built by factory.
func NewListener(config Config, pool Submitter, factory JobFactory) *Listener {
	failfast.NotNil(pool, "pool")
	failfast.NotNil(factory, "factory")
	failfast.If(config.MaxConns >= 0, "max conns must be >= 0, got %d", config.MaxConns)
	failfast.If(config.ServeLimit >= 0, "serve limit must be >= 0, got %d", config.ServeLimit)

	l := &Listener{
		config:  config,
		pool:    pool,
		factory: factory,
		logger:  config.Logger,
		metrics: config.Metrics,
		done:    make(chan struct{}),
	}
	if l.logger == nil {
		l.logger = core.NewDefaultLogger()
	}
	if config.MaxConns > 0 {
		l.backpressure = NewBackpressureController(config.MaxConns)
	}
	return l
}

// Start listens on the configured address and runs the accept loop.
// It blocks until Stop is called, the serve limit is reached, or the pool
// stops taking jobs. Stop and the serve limit both return nil.
func (l *Listener) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(l.done)

	ln, err := net.Listen("tcp", l.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.config.Addr, err)
	}
	if l.config.TLSConfig != nil {
		ln = tls.NewListener(ln, l.config.TLSConfig)
	}
	defer ln.Close()

	l.mu.Lock()
	if l.stopping.Load() {
		l.mu.Unlock()
		return nil
	}
	l.listener = ln
	l.addr = ln.Addr().String()
	l.mu.Unlock()

	l.logger.Infof("listening on %s", l.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.logger.Warnf("accept: %v", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if err := l.handOff(conn); err != nil {
			return err
		}

		if limit := int64(l.config.ServeLimit); limit > 0 && l.accepted.Load() >= limit {
			l.logger.Infof("served %d connections, no longer accepting", limit)
			return nil
		}
	}
}

// handOff submits conn to the pool, or closes it when the listener is at
// MaxConns or the pool refuses the job. Only a pool closed under a running
// listener is an error.
func (l *Listener) handOff(conn net.Conn) error {
	remote := conn.RemoteAddr().String()

	if l.backpressure != nil && !l.backpressure.TryAcquire() {
		l.reject(conn, remote, "max connections reached")
		return nil
	}

	job := l.factory(conn)
	if job == nil {
		l.release()
		l.reject(conn, remote, "no job for connection")
		return nil
	}

	l.active.Add(1)
	if err := l.pool.TrySubmit(&connJob{Job: job, release: l.finish}); err != nil {
		l.finish()
		l.reject(conn, remote, err.Error())
		if errors.Is(err, threadpool.ErrPoolClosed) && !l.stopping.Load() {
			return fmt.Errorf("hand off connection: %w", err)
		}
		return nil
	}

	l.accepted.Add(1)
	l.metrics.RecordConnection(OutcomeAccepted)
	l.logger.Debugf("accepted connection from %s", remote)
	return nil
}

func (l *Listener) reject(conn net.Conn, remote, reason string) {
	conn.Close()
	l.rejected.Add(1)
	l.metrics.RecordConnection(OutcomeRejected)
	l.logger.Warnf("rejected connection from %s: %s", remote, reason)
}

func (l *Listener) release() {
	if l.backpressure != nil {
		l.backpressure.Release()
	}
}

// finish runs once per handed-off connection when its job is done.
func (l *Listener) finish() {
	l.active.Add(-1)
	l.release()
}

// Stop closes the listening socket. Connections already handed off keep
// running in the pool. Stop is safe to call more than once.
func (l *Listener) Stop() error {
	l.stopping.Store(true)

	l.mu.RLock()
	ln := l.listener
	l.mu.RUnlock()
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Done is closed when Start returns.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// ListeningAddr returns the bound address, or "" before Start has bound.
func (l *Listener) ListeningAddr() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.addr
}

// Metrics returns a snapshot of listener statistics.
func (l *Listener) Metrics() ServerMetrics {
	m := ServerMetrics{
		Addr:       l.ListeningAddr(),
		Accepted:   l.accepted.Load(),
		Rejected:   l.rejected.Load(),
		Active:     l.active.Load(),
		MaxConns:   l.config.MaxConns,
		ServeLimit: l.config.ServeLimit,
	}
	if l.backpressure != nil {
		bp := l.backpressure.GetMetrics()
		m.Backpressure = &bp
	}
	return m
}

// connJob gives the connection's slot back once the wrapped job has run.
type connJob struct {
	threadpool.Job
	release func()
	once    sync.Once
}

func (j *connJob) Execute(ctx context.Context) (threadpool.JobResult, error) {
	defer j.once.Do(j.release)
	return j.Job.Execute(ctx)
}
