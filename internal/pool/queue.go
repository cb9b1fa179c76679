package pool

import "sync"

// queue is an unbounded multi-producer single-consumer FIFO.
// Push never blocks. The consumer waits on Ready and then calls Pop once;
// a signal stays pending for as long as items remain. A wake-up can find
// the queue already drained, in which case Pop reports false.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v and wakes the consumer.
func (q *queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

// Ready fires when at least one item is waiting.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes the oldest item.
func (q *queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return v, true
}

// Len returns the number of waiting items.
func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
