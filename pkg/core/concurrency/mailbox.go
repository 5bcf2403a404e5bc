package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrMailboxClosed is returned by a send after Close and by a receive on a
	// closed, drained mailbox.
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned by Send on a bounded mailbox with no room.
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a multi-producer, multi-consumer queue.
// Every message sent is received by exactly one Receive call.
type Mailbox[T any] interface {
	// Send enqueues msg without blocking.
	// Returns ErrMailboxFull if a bounded mailbox has no room,
	// ErrMailboxClosed after Close.
	Send(msg T) error

	// SendWait enqueues msg, waiting for room if the mailbox is bounded and full.
	// Returns ctx.Err() if ctx ends first, ErrMailboxClosed after Close.
	SendWait(ctx context.Context, msg T) error

	// Receive blocks until a message is available or ctx is cancelled.
	// After Close, queued messages are still handed out; once the mailbox
	// is empty Receive returns ErrMailboxClosed.
	Receive(ctx context.Context) (T, error)

	// Close stops accepting messages and wakes blocked receivers. Idempotent.
	Close()

	// Capacity returns the maximum capacity, 0 for an unbounded mailbox.
	Capacity() int

	// Size returns the number of queued messages.
	Size() int
}
