package concurrency

import (
	"context"
	"sync"
)

// boundedMailbox implements Mailbox on a buffered channel.
// The channel is never closed; done signals Close so a send can never panic.
type boundedMailbox[T any] struct {
	ch       chan T
	done     chan struct{}
	once     sync.Once
	mu       sync.RWMutex // held for reading by senders, for writing by Close
	closed   bool
	capacity int
}

// NewBoundedMailbox creates a mailbox holding at most capacity messages.
func NewBoundedMailbox[T any](capacity int) Mailbox[T] {
	if capacity < 1 {
		capacity = 100
	}

	return &boundedMailbox[T]{
		ch:       make(chan T, capacity),
		done:     make(chan struct{}),
		capacity: capacity,
	}
}

// Send implements Mailbox interface
func (mb *boundedMailbox[T]) Send(msg T) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if mb.closed {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// SendWait implements Mailbox interface
func (mb *boundedMailbox[T]) SendWait(ctx context.Context, msg T) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if mb.closed {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg:
		return nil
	case <-mb.done:
		return ErrMailboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Mailbox interface
func (mb *boundedMailbox[T]) Receive(ctx context.Context) (T, error) {
	select {
	case msg := <-mb.ch:
		return msg, nil
	default:
	}

	var zero T
	select {
	case msg := <-mb.ch:
		return msg, nil
	case <-mb.done:
		// Drain whatever was accepted before Close.
		select {
		case msg := <-mb.ch:
			return msg, nil
		default:
			return zero, ErrMailboxClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close implements Mailbox interface
func (mb *boundedMailbox[T]) Close() {
	mb.once.Do(func() {
		// Wake SendWait callers first so they release the read lock.
		close(mb.done)
		mb.mu.Lock()
		mb.closed = true
		mb.mu.Unlock()
	})
}

// Capacity implements Mailbox interface
func (mb *boundedMailbox[T]) Capacity() int {
	return mb.capacity
}

// Size implements Mailbox interface
func (mb *boundedMailbox[T]) Size() int {
	return len(mb.ch)
}
