package event

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO with many producers and a single consumer.
// Put never blocks, so a slow consumer never stalls the terminal or the
// filesystem watcher.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Put appends item and reports whether it was accepted.
func (q *Queue[T]) Put(item T) bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Get blocks until an item is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if q == nil {
		return zero, ErrQueueClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return zero, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further Puts. Buffered items can still be drained.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}
