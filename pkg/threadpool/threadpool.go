// Package threadpool runs jobs on a fixed set of worker goroutines and hands
// every result to a second, equally sized set of watcher goroutines for
// post-processing.
//
// Workers and watchers pull from shared queues, so a job is executed by
// exactly one worker and its result is handled by exactly one watcher.
// Shutdown stops all workers before any watcher, which guarantees that every
// result produced before Close is handled before Close returns.
package threadpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/concurrency"
	"github.com/fluxorio/symphony/pkg/core/failfast"
)

// ThreadPool is the user-facing controller of the worker and watcher pools.
type ThreadPool struct {
	size            int
	policy          QueuePolicy
	shutdownTimeout time.Duration

	state    *poolState
	cancel   context.CancelFunc
	workers  *workerPool
	watchers *watcherPool

	// stopping ends when Shutdown begins. It cuts short enqueues waiting on
	// a full bounded queue so they release gate.
	stopping context.Context
	stop     context.CancelFunc

	// gate is read-locked for every enqueue and write-locked to flip closed,
	// so no job can slip in behind the stop requests.
	gate   sync.RWMutex
	closed bool
	done   chan struct{}
}

// New starts max(1, size) workers and as many watchers.
func New(size int, opts ...Option) (*ThreadPool, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("threadpool: %w", err)
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	if o.logger == nil {
		o.logger = core.NewDefaultLogger()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if size < 1 {
		size = 1
	}

	ctx, cancel := context.WithCancel(o.ctx)
	state := &poolState{
		ctx:     ctx,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracerProvider.Tracer(tracerName),
	}

	stopping, stop := context.WithCancel(context.Background())
	p := &ThreadPool{
		stopping:        stopping,
		stop:            stop,
		size:            size,
		policy:          o.policy,
		shutdownTimeout: o.shutdownTimeout,
		state:           state,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	p.watchers = newWatcherPool(state, size, o.resultQueueCapacity, o.handlers, o.watchDelay)
	p.workers = newWorkerPool(state, size, o.queueCapacity, p.watchers.deliver)

	state.logger.Infof("thread pool started with %d workers and %d watchers", size, size)
	return p, nil
}

// Size returns the number of workers, which is also the number of watchers.
func (p *ThreadPool) Size() int {
	return p.size
}

// Submit enqueues job, waiting for room if the work queue is bounded and full.
// Submitting a nil job or submitting after shutdown has begun panics, and so
// does a Submit still waiting for room when shutdown begins.
func (p *ThreadPool) Submit(job Job) {
	failfast.NotNil(job, "job")
	if err := p.enqueue(job, nil, true); err != nil {
		failfast.Err(fmt.Errorf("submit %s: %w", job.Name(), err))
	}
}

// TrySubmit is Submit for callers that must not panic. Under QueueReject it
// returns ErrQueueFull instead of waiting on a full bounded queue.
func (p *ThreadPool) TrySubmit(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	return p.enqueue(job, nil, p.policy == QueueBlock)
}

// SubmitAwait enqueues job like TrySubmit and returns a handle to its result.
func (p *ThreadPool) SubmitAwait(job Job) (*Future, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	f := newFuture()
	if err := p.enqueue(job, f, p.policy == QueueBlock); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *ThreadPool) enqueue(job Job, future *Future, wait bool) error {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.closed || p.stopping.Err() != nil {
		return ErrPoolClosed
	}

	item := workItem{
		kind:     itemPayload,
		job:      job,
		id:       core.GenerateRequestID(),
		future:   future,
		enqueued: time.Now(),
	}
	if err := p.workers.submit(p.stopping, item, wait); err != nil {
		if p.stopping.Err() != nil {
			return ErrPoolClosed
		}
		if errors.Is(err, concurrency.ErrMailboxFull) {
			p.state.rejected.Add(1)
			p.state.metrics.RecordRejected()
			return ErrQueueFull
		}
		return fmt.Errorf("enqueue %s: %w", job.Name(), err)
	}
	p.state.submitted.Add(1)
	p.state.metrics.RecordSubmitted()
	return nil
}

// Close shuts the pool down, waiting for every queued job and every result
// to be handled. It is bounded by WithShutdownTimeout when set.
// Calling Close again returns nil.
func (p *ThreadPool) Close() error {
	ctx := context.Background()
	if p.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.shutdownTimeout)
		defer cancel()
	}
	return p.Shutdown(ctx)
}

// Shutdown stops the pool: one stop request per worker, join the workers in
// id order, then the same for the watchers. Threads still running when ctx
// ends are abandoned and ErrShutdownTimeout is returned.
//
// Only the first call does the work. Concurrent callers wait for it and get nil.
func (p *ThreadPool) Shutdown(ctx context.Context) error {
	p.stop()
	p.gate.Lock()
	if p.closed {
		p.gate.Unlock()
		select {
		case <-p.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for concurrent shutdown: %w", ErrShutdownTimeout, ctx.Err())
		}
	}
	p.closed = true
	p.gate.Unlock()
	defer close(p.done)

	p.state.logger.Infof("thread pool shutting down %d workers", p.size)
	errWorkers := p.workers.shutdown(ctx)

	p.state.logger.Infof("thread pool shutting down %d watchers", p.size)
	errWatchers := p.watchers.shutdown(ctx)

	p.cancel()
	if err := errors.Join(errWorkers, errWatchers); err != nil {
		p.state.logger.Errorf("thread pool shutdown: %v", err)
		return err
	}
	p.state.logger.Info("thread pool stopped")
	return nil
}

// Running reports whether the pool still accepts jobs.
func (p *ThreadPool) Running() bool {
	return p.stopping.Err() == nil
}
