package threadpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/concurrency"
	"github.com/fluxorio/symphony/pkg/observability/prometheus"
)

// watcherPool owns the watchers and the result queue.
type watcherPool struct {
	state    *poolState
	queue    concurrency.Mailbox[resultItem]
	watchers []*thread
	handlers []namedHandler
	delay    time.Duration
}

func newWatcherPool(state *poolState, size, capacity int, handlers []ResultHandler, delay time.Duration) *watcherPool {
	wp := &watcherPool{
		state:    state,
		queue:    newQueue[resultItem](capacity),
		watchers: make([]*thread, size),
		delay:    delay,
	}
	for _, h := range handlers {
		wp.handlers = append(wp.handlers, nameHandler(h))
	}
	for id := 0; id < size; id++ {
		t := &thread{id: id}
		t.handle = spawn(func() { wp.run(t) })
		wp.watchers[id] = t
	}
	state.metrics.SetThreads(roleWatcher, size)
	return wp
}

// deliver places a result on the result queue, waiting for room if it is
// bounded and full.
func (wp *watcherPool) deliver(result JobResult, span trace.SpanContext) error {
	item := resultItem{kind: itemPayload, result: result, span: span}
	if err := wp.queue.SendWait(context.Background(), item); err != nil {
		return fmt.Errorf("deliver result of job %s: %w", result.JobID, err)
	}
	wp.state.delivered.Add(1)
	wp.state.metrics.RecordDelivered()
	wp.state.metrics.SetQueueDepth(queueResult, wp.queue.Size())
	return nil
}

func (wp *watcherPool) run(t *thread) {
	logger := wp.state.logger
	for {
		item, err := wp.queue.Receive(context.Background())
		if err != nil {
			logger.Debugf("watcher %d: queue closed", t.id)
			return
		}
		if item.kind == itemShutdown {
			t.shutdowns.Add(1)
			logger.Debugf("watcher %d was told to terminate", t.id)
			return
		}
		wp.state.metrics.SetQueueDepth(queueResult, wp.queue.Size())
		wp.process(t.id, item)
	}
}

func (wp *watcherPool) process(watcherID int, item resultItem) {
	s := wp.state
	s.busy(roleWatcher, 1)
	defer s.busy(roleWatcher, -1)

	started := time.Now()
	if wp.delay > 0 {
		timer := time.NewTimer(wp.delay)
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			timer.Stop()
		}
	}

	opts := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("job.id", item.result.JobID),
			attribute.Int("watcher.id", watcherID),
			attribute.Bool("job.failed", item.result.Failed()),
		),
	}
	if item.span.IsValid() {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: item.span}))
	}
	ctx, span := s.tracer.Start(core.WithRequestID(s.ctx, item.result.JobID), "threadpool.watch", opts...)
	defer span.End()

	if len(wp.handlers) == 0 {
		s.logger.Debugf("watcher %d observed job %s", watcherID, item.result.JobID)
	}
	for _, h := range wp.handlers {
		status := prometheus.StatusOK
		if err := runHandler(ctx, h, item.result); err != nil {
			status = prometheus.StatusError
			if errors.Is(err, ErrHandlerPanicked) {
				status = prometheus.StatusPanic
			}
			span.RecordError(err)
			s.logger.Errorf("watcher %d: handler %s failed for job %s: %v", watcherID, h.name, item.result.JobID, err)
		}
		s.handled.Add(1)
		s.metrics.RecordHandled(h.name, status)
	}
	s.metrics.RecordWatch(time.Since(started))
}

// shutdown sends one stop request per watcher, joins them in id order and
// closes the result queue.
func (wp *watcherPool) shutdown(ctx context.Context) error {
	var errs []error
	for range wp.watchers {
		if err := sendShutdown(ctx, wp.queue, resultItem{kind: itemShutdown}); err != nil {
			errs = append(errs, fmt.Errorf("stop watchers: %w", err))
			break
		}
	}
	errs = append(errs, joinAll(ctx, roleWatcher, wp.watchers, wp.state.logger))
	wp.queue.Close()
	wp.state.metrics.SetThreads(roleWatcher, 0)
	return errors.Join(errs...)
}
