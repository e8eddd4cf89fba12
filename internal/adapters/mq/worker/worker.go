// Package worker runs a single ordered consumer over a queue.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Queue is the consumer side of a queue.
type Queue[T any] interface {
	Dequeue(ctx context.Context) <-chan T
}

// Handler processes one item. Errors are logged and counted; the worker
// moves on to the next item.
type Handler[T any] func(ctx context.Context, item T) error

// Worker defines the worker lifecycle.
type Worker interface {
	// Run processes items until the queue is drained and closed, ctx is
	// done, or Shutdown is called. It blocks.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error

	// Drain waits for Run to return after the queue has been closed.
	Drain(ctx context.Context) error
}

// InMemoryWorker handles items one at a time in queue order.
type InMemoryWorker[T any] struct {
	queue   Queue[T]
	handler Handler[T]
	name    string
	logger  logger.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewInMemoryWorker creates a worker over q.
func NewInMemoryWorker[T any](q Queue[T], h Handler[T], opts ...Option) *InMemoryWorker[T] {
	o := options{name: "worker"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(o.name)
	}

	return &InMemoryWorker[T]{
		queue:    q,
		handler:  h,
		name:     o.name,
		logger:   o.logger,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run implements Worker.Run.
func (w *InMemoryWorker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := w.handler(ctx, item); err != nil {
				metrics.RecordErrorByComponent("worker", w.name)
				w.logger.Error(ctx, "error processing item", logger.Error(err))
			}
		}
	}
}

// Shutdown implements Worker.Shutdown.
func (w *InMemoryWorker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	return w.wait(ctx)
}

// Drain implements Worker.Drain.
func (w *InMemoryWorker[T]) Drain(ctx context.Context) error {
	return w.wait(ctx)
}

func (w *InMemoryWorker[T]) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker[T]) Done() <-chan struct{} {
	return w.done
}
