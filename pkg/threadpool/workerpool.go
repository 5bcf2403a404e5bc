package threadpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/concurrency"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
)

// deliverFunc hands a finished result to the watcher side.
type deliverFunc func(result JobResult, span trace.SpanContext) error

// workerPool owns the workers and the work queue.
type workerPool struct {
	state   *poolState
	queue   concurrency.Mailbox[workItem]
	workers []*thread
	deliver deliverFunc
}

func newWorkerPool(state *poolState, size, capacity int, deliver deliverFunc) *workerPool {
	wp := &workerPool{
		state:   state,
		queue:   newQueue[workItem](capacity),
		workers: make([]*thread, size),
		deliver: deliver,
	}
	for id := 0; id < size; id++ {
		t := &thread{id: id}
		t.handle = spawn(func() { wp.run(t) })
		wp.workers[id] = t
	}
	state.metrics.SetThreads(roleWorker, size)
	return wp
}

func newQueue[T any](capacity int) concurrency.Mailbox[T] {
	if capacity > 0 {
		return concurrency.NewBoundedMailbox[T](capacity)
	}
	return concurrency.NewUnboundedMailbox[T]()
}

// submit enqueues item. With wait set it waits for room on a full bounded
// queue until ctx ends, otherwise it fails with concurrency.ErrMailboxFull.
func (wp *workerPool) submit(ctx context.Context, item workItem, wait bool) error {
	var err error
	if wait {
		err = wp.queue.SendWait(ctx, item)
	} else {
		err = wp.queue.Send(item)
	}
	if err != nil {
		return err
	}
	wp.state.metrics.SetQueueDepth(queueWork, wp.queue.Size())
	return nil
}

func (wp *workerPool) run(t *thread) {
	logger := wp.state.logger
	for {
		item, err := wp.queue.Receive(context.Background())
		if err != nil {
			logger.Debugf("worker %d: queue closed", t.id)
			return
		}
		if item.kind == itemShutdown {
			t.shutdowns.Add(1)
			logger.Debugf("worker %d was told to terminate", t.id)
			return
		}
		wp.state.metrics.SetQueueDepth(queueWork, wp.queue.Size())
		wp.execute(t.id, item)
	}
}

func (wp *workerPool) execute(workerID int, item workItem) {
	s := wp.state
	ctx, cancel := context.WithCancel(core.WithRequestID(s.ctx, item.id))
	defer cancel()

	if item.future != nil && !item.future.begin(cancel) {
		s.logger.Debugf("worker %d: skipping cancelled job %s", workerID, item.id)
		return
	}

	s.logger.Debugf("worker %d got a job; executing %s (%s)", workerID, item.job.Name(), item.id)
	ctx, span := s.tracer.Start(ctx, "threadpool.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.id", item.id),
			attribute.String("job.name", item.job.Name()),
			attribute.Int("worker.id", workerID),
			attribute.Int64("job.queued_ms", time.Since(item.enqueued).Milliseconds()),
		),
	)

	s.busy(roleWorker, 1)
	started := time.Now()
	result, err := runJob(ctx, item.job)
	duration := time.Since(started)
	s.busy(roleWorker, -1)

	result.JobID = item.id
	result.JobName = item.job.Name()
	result.WorkerID = workerID
	result.Started = started
	result.Duration = duration

	status := prometheus.StatusOK
	if err != nil {
		status = prometheus.StatusError
		if errors.Is(err, ErrJobPanicked) {
			status = prometheus.StatusPanic
		}
		result.Err = err.Error()
		s.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Errorf("worker %d: job %s (%s) failed: %v", workerID, result.JobName, item.id, err)
	}
	s.completed.Add(1)
	s.metrics.RecordJob(status, duration)
	spanCtx := span.SpanContext()
	span.End()

	if derr := wp.deliver(result, spanCtx); derr != nil {
		s.logger.Errorf("worker %d: result of job %s dropped: %v", workerID, item.id, derr)
	}

	if item.future != nil {
		item.future.complete(result, err)
	}
}

func runJob(ctx context.Context, job Job) (result JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Execute(ctx)
}

// shutdown sends one stop request per worker, joins them in id order and
// closes the work queue.
func (wp *workerPool) shutdown(ctx context.Context) error {
	var errs []error
	for range wp.workers {
		if err := sendShutdown(ctx, wp.queue, workItem{kind: itemShutdown}); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
			break
		}
	}
	errs = append(errs, joinAll(ctx, roleWorker, wp.workers, wp.state.logger))
	wp.queue.Close()
	wp.state.metrics.SetThreads(roleWorker, 0)
	return errors.Join(errs...)
}
