// Package queue provides an unbounded FIFO used to connect pipeline stages.
package queue

import (
	"context"
	"sync"
)

const minCapacity = 16

// Queue is an unbounded, concurrency-safe FIFO. Push never blocks; Pop blocks
// until an item is available or the context is done.
//
// Items live in a circular buffer that doubles when full.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest item
	count int // number of items currently queued
	ready chan struct{}
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, minCapacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends v to the tail of the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.count == len(q.items) {
		q.grow()
	}
	q.items[(q.head+q.count)%len(q.items)] = v
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// grow doubles the buffer, unwrapping it so the oldest item lands at index 0.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	copied := copy(next, q.items[q.head:])
	copy(next[copied:], q.items[:q.head])
	q.items = next
	q.head = 0
}

// TryPop removes and returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return v, true
}

// Pop removes and returns the oldest item, waiting for one if the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			if q.Len() > 0 {
				// keep other waiters moving
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Ready returns a channel that receives after a Push. It suits a single
// consumer that selects over several queues and drains each with TryPop
// after every wake-up.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
