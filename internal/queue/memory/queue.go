// Package memory provides the bounded in-memory work queue that connects the
// line producer to the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
)

// Queue is a bounded FIFO queue with context-aware operations. Enqueue blocks
// while the queue is full; Dequeue blocks while it is empty and open.
type Queue[T any] struct {
	ch chan T

	// sendMu is held for reading by every in-flight Enqueue and for writing by
	// Close, so the channel is never closed under a pending send.
	sendMu    sync.RWMutex
	closing   chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:      make(chan T, capacity),
		closing: make(chan struct{}),
	}
}

// Enqueue pushes an item, blocking until space is available. It returns
// crawler.ErrQueueClosed once Close has been called and the context error if
// ctx ends first.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()

	select {
	case <-q.closing:
		return crawler.ErrQueueClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.closing:
		return crawler.ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item. It returns false once the queue is closed and
// drained, or when ctx ends. Buffered items are still delivered after Close.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, bool) {
	var zero T
	if ctx.Err() != nil {
		return zero, false
	}
	select {
	case <-ctx.Done():
		return zero, false
	case item, ok := <-q.ch:
		if !ok {
			return zero, false
		}
		return item, true
	}
}

// Close stops further enqueues. It is idempotent and safe to call while an
// Enqueue is blocked on a full queue.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closing)
		q.sendMu.Lock()
		close(q.ch)
		q.sendMu.Unlock()
	})
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
