// Package queue provides a bounded in-memory FIFO used to hand work from the
// ranking store's commit hook to background dispatchers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/podium/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue defines the minimal interface for a FIFO of T.
type Queue[T any] interface {
	// Enqueue adds an item without blocking. Returns false if the queue is
	// full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns a channel that yields items in FIFO order until the
	// queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of items in the queue.
	Len(ctx context.Context) int

	Close() error

	IsClosed() bool
}

// InMemoryQueue is a channel-backed Queue. Enqueue never blocks, so it is safe
// to call while holding a lock.
type InMemoryQueue[T any] struct {
	items    chan T
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

var _ Queue[int] = (*InMemoryQueue[int])(nil)

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	o := options{capacity: defaultQueueCapacity, name: "queue"}
	for _, opt := range opts {
		opt(&o)
	}

	q := &InMemoryQueue[T]{
		items:    make(chan T, o.capacity),
		capacity: o.capacity,
		name:     o.name,
	}

	metrics.UpdateQueueCapacity(q.name, q.capacity)
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueReject(q.name, "closed")
		return false
	}

	select {
	case q.items <- item:
		metrics.UpdateQueueSize(q.name, len(q.items))
		return true
	case <-ctx.Done():
		metrics.RecordQueueReject(q.name, "context_cancelled")
		return false
	default:
		metrics.RecordQueueReject(q.name, "full")
		return false
	}
}

// Dequeue implements Queue.Dequeue. Use a single consumer to keep FIFO order.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for item := range q.items {
			select {
			case out <- item:
				metrics.UpdateQueueSize(q.name, len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.Len.
func (q *InMemoryQueue[T]) Len(ctx context.Context) int {
	return len(q.items)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue[T]) Capacity() int {
	return q.capacity
}

// Close stops accepting items. Items already queued are still delivered.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed implements Queue.IsClosed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
