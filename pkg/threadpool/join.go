package threadpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fluxorio/symphony/pkg/core"
	"github.com/fluxorio/symphony/pkg/core/concurrency"
)

// joinHandle is the join side of one goroutine.
type joinHandle struct {
	done  chan struct{}
	crash error
}

// spawn runs fn on a new goroutine. A panic escaping fn is kept as the crash
// error instead of taking the process down.
func spawn(fn func()) *joinHandle {
	h := &joinHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.crash = fmt.Errorf("%w: %v", ErrThreadCrashed, r)
			}
		}()
		fn()
	}()
	return h
}

// wait blocks until the goroutine exits or ctx ends.
func (h *joinHandle) wait(ctx context.Context) (finished bool, crash error) {
	select {
	case <-h.done:
		return true, h.crash
	default:
	}
	select {
	case <-h.done:
		return true, h.crash
	case <-ctx.Done():
		return false, nil
	}
}

// thread is the record of one worker or watcher.
// handle is nil once the thread has been joined.
type thread struct {
	id        int
	handle    *joinHandle
	shutdowns atomic.Int32
}

// joinAll joins threads in id order. Threads still running when ctx ends are
// abandoned and reported with ErrShutdownTimeout.
func joinAll(ctx context.Context, role string, threads []*thread, logger core.Logger) error {
	var errs []error
	var abandoned []int
	for _, t := range threads {
		if t.handle == nil {
			continue
		}
		logger.Infof("shutting down %s %d", role, t.id)
		finished, crash := t.handle.wait(ctx)
		if !finished {
			abandoned = append(abandoned, t.id)
			continue
		}
		t.handle = nil
		if crash != nil {
			logger.Errorf("%s %d crashed: %v", role, t.id, crash)
			errs = append(errs, fmt.Errorf("%s %d: %w", role, t.id, crash))
		}
	}
	if len(abandoned) > 0 {
		logger.Warnf("abandoning %s threads %v still running at shutdown deadline", role, abandoned)
		errs = append(errs, fmt.Errorf("%w: %s threads %v abandoned", ErrShutdownTimeout, role, abandoned))
	}
	return errors.Join(errs...)
}

// sendShutdown enqueues a stop request. It only waits, bounded by ctx, when
// the queue is bounded and full.
func sendShutdown[T any](ctx context.Context, queue concurrency.Mailbox[T], item T) error {
	err := queue.Send(item)
	if errors.Is(err, concurrency.ErrMailboxFull) {
		err = queue.SendWait(ctx, item)
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, err)
	}
	return err
}
