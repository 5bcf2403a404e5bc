package threadpool

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a pool that has begun shutting down.
	ErrPoolClosed = errors.New("thread pool is closed")

	// ErrQueueFull is returned by TrySubmit under QueueReject when the work queue has no room.
	ErrQueueFull = errors.New("thread pool work queue is full")

	// ErrNilJob is returned by TrySubmit and SubmitAwait for a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrShutdownTimeout is returned when Shutdown gives up on joining threads.
	ErrShutdownTimeout = errors.New("thread pool shutdown timed out")

	// ErrJobPanicked wraps the value recovered from a panicking job.
	ErrJobPanicked = errors.New("job panicked")

	// ErrHandlerPanicked wraps the value recovered from a panicking result handler.
	ErrHandlerPanicked = errors.New("result handler panicked")

	// ErrThreadCrashed reports a worker or watcher goroutine that died outside a job.
	ErrThreadCrashed = errors.New("thread crashed")

	// ErrCancelled is the error of a Future cancelled before its job started.
	ErrCancelled = errors.New("job cancelled before it started")
)
