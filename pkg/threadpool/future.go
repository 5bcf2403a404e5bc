package threadpool

import (
	"context"
	"sync"
)

type futureState uint8

const (
	futurePending futureState = iota
	futureRunning
	futureFinished
	futureCancelled
)

// Future is the completion handle returned by SubmitAwait.
type Future struct {
	done chan struct{}

	mu     sync.Mutex
	state  futureState
	cancel context.CancelFunc
	result JobResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// begin marks the job as started. It returns false if the job was cancelled
// while queued, in which case the worker must skip it.
func (f *Future) begin(cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != futurePending {
		return false
	}
	f.state = futureRunning
	f.cancel = cancel
	return true
}

func (f *Future) complete(result JobResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == futureFinished || f.state == futureCancelled {
		return
	}
	f.state = futureFinished
	f.cancel = nil
	f.result = result
	f.err = err
	close(f.done)
}

// Cancel skips the job if it has not started, or cancels its context if it
// is running. It returns false once the job has finished.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case futurePending:
		f.state = futureCancelled
		f.err = ErrCancelled
		close(f.done)
		return true
	case futureRunning:
		f.cancel()
		return true
	default:
		return false
	}
}

// Done is closed when the job finishes or is cancelled before starting.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait returns the job's result and error once it finishes.
// A job cancelled before it started reports ErrCancelled.
func (f *Future) Wait(ctx context.Context) (JobResult, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		return JobResult{}, ctx.Err()
	}
}
