package threadpool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/failfast"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
)

// QueuePolicy decides what TrySubmit and SubmitAwait do when a bounded work
// queue is full. Submit always waits.
type QueuePolicy int

const (
	// QueueBlock waits for room.
	QueueBlock QueuePolicy = iota
	// QueueReject fails fast with ErrQueueFull.
	QueueReject
)

func (p QueuePolicy) String() string {
	switch p {
	case QueueBlock:
		return "block"
	case QueueReject:
		return "reject"
	default:
		return fmt.Sprintf("QueuePolicy(%d)", int(p))
	}
}

// ParseQueuePolicy parses "block" or "reject". Empty means block.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return QueueBlock, nil
	case "reject":
		return QueueReject, nil
	default:
		return QueueBlock, fmt.Errorf("unknown queue policy %q", s)
	}
}

type options struct {
	ctx                 context.Context
	logger              core.Logger
	metrics             *prometheus.Metrics
	tracerProvider      trace.TracerProvider
	handlers            []ResultHandler
	watchDelay          time.Duration
	queueCapacity       int
	resultQueueCapacity int
	policy              QueuePolicy
	shutdownTimeout     time.Duration
}

// Option configures a ThreadPool.
type Option func(*options)

// WithContext sets the parent of every job context. Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithLogger sets the logger. Defaults to core.NewDefaultLogger().
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records pool activity on m.
func WithMetrics(m *prometheus.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracerProvider sets where job and watch spans go.
// Defaults to the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithResultHandlers appends handlers run by watchers for every result.
func WithResultHandlers(handlers ...ResultHandler) Option {
	for i, h := range handlers {
		failfast.NotNil(h, fmt.Sprintf("result handler %d", i))
	}
	return func(o *options) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// WithWatchDelay makes each watcher pause before handling a result.
func WithWatchDelay(d time.Duration) Option {
	return func(o *options) {
		o.watchDelay = d
	}
}

// WithQueueCapacity bounds the work queue. Zero means unbounded.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.queueCapacity = n
	}
}

// WithResultQueueCapacity bounds the result queue. Zero means unbounded.
// A full result queue makes workers wait for watchers.
func WithResultQueueCapacity(n int) Option {
	return func(o *options) {
		o.resultQueueCapacity = n
	}
}

// WithQueuePolicy sets the full-queue behaviour of TrySubmit and SubmitAwait.
func WithQueuePolicy(p QueuePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithShutdownTimeout bounds the joins performed by Close. Zero waits forever.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

func (o *options) validate() error {
	if o.queueCapacity < 0 {
		return fmt.Errorf("queue capacity must be >= 0, got %d", o.queueCapacity)
	}
	if o.resultQueueCapacity < 0 {
		return fmt.Errorf("result queue capacity must be >= 0, got %d", o.resultQueueCapacity)
	}
	if o.policy != QueueBlock && o.policy != QueueReject {
		return fmt.Errorf("unknown queue policy %v", o.policy)
	}
	if o.watchDelay < 0 {
		return fmt.Errorf("watch delay must be >= 0, got %v", o.watchDelay)
	}
	if o.shutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be >= 0, got %v", o.shutdownTimeout)
	}
	return nil
}
