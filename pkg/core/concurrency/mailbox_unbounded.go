package concurrency

import (
	"context"
	"sync"
)

// unboundedMailbox implements Mailbox on a mutex-guarded slice.
// Send never blocks and never reports ErrMailboxFull.
//
// ready holds at most one wake-up token. A receiver that takes an item and
// sees more left behind passes the token on, so no waiter is stranded when
// several sends collapse into one token.
type unboundedMailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	ready  chan struct{}
	done   chan struct{}
}

// NewUnboundedMailbox creates a mailbox with no capacity limit.
func NewUnboundedMailbox[T any]() Mailbox[T] {
	return &unboundedMailbox[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (mb *unboundedMailbox[T]) signal() {
	select {
	case mb.ready <- struct{}{}:
	default:
	}
}

// Send implements Mailbox interface
func (mb *unboundedMailbox[T]) Send(msg T) error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrMailboxClosed
	}
	mb.items = append(mb.items, msg)
	mb.mu.Unlock()

	mb.signal()
	return nil
}

// SendWait implements Mailbox interface. An unbounded mailbox always has room.
func (mb *unboundedMailbox[T]) SendWait(ctx context.Context, msg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mb.Send(msg)
}

// pop removes the oldest item. Caller holds mu.
func (mb *unboundedMailbox[T]) pop() (T, bool) {
	var zero T
	if mb.head >= len(mb.items) {
		return zero, false
	}
	msg := mb.items[mb.head]
	mb.items[mb.head] = zero
	mb.head++
	if mb.head == len(mb.items) {
		mb.items = mb.items[:0]
		mb.head = 0
	} else if mb.head > 1024 && mb.head*2 > len(mb.items) {
		// Compact so a long-lived backlog does not pin the old prefix.
		n := copy(mb.items, mb.items[mb.head:])
		clear(mb.items[n:])
		mb.items = mb.items[:n]
		mb.head = 0
	}
	return msg, true
}

// Receive implements Mailbox interface
func (mb *unboundedMailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		mb.mu.Lock()
		msg, ok := mb.pop()
		remaining := len(mb.items) - mb.head
		closed := mb.closed
		mb.mu.Unlock()

		if ok {
			if remaining > 0 {
				mb.signal()
			}
			return msg, nil
		}
		if closed {
			return zero, ErrMailboxClosed
		}

		select {
		case <-mb.ready:
		case <-mb.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close implements Mailbox interface
func (mb *unboundedMailbox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
}

// Capacity implements Mailbox interface
func (mb *unboundedMailbox[T]) Capacity() int {
	return 0
}

// Size implements Mailbox interface
func (mb *unboundedMailbox[T]) Size() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.items) - mb.head
}
