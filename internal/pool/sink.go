package pool

import (
	"sync"
	"time"
)

// sink fans every emitted value out to all registered listeners.
// Emit and Close are only called from the dispatch loop; Listen may be
// called from any goroutine.
type sink[T any] struct {
	mu        sync.Mutex
	listeners []chan T
	closed    bool
	buffer    int
	grace     time.Duration
	onDrop    func()
}

func newSink[T any](buffer int, grace time.Duration, onDrop func()) *sink[T] {
	return &sink[T]{buffer: buffer, grace: grace, onDrop: onDrop}
}

// Listen registers a new listener. After Close the returned channel is
// already closed.
func (s *sink[T]) Listen() <-chan T {
	ch := make(chan T, s.buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.listeners = append(s.listeners, ch)
	return ch
}

// Emit delivers v to each listener, waiting at most grace for a full one.
func (s *sink[T]) Emit(v T) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- v:
			continue
		default:
		}

		timer := time.NewTimer(s.grace)
		select {
		case ch <- v:
		case <-timer.C:
			if s.onDrop != nil {
				s.onDrop()
			}
		}
		timer.Stop()
	}
}

// TryEmit delivers v to each listener that has room and drops it for the
// rest without waiting.
func (s *sink[T]) TryEmit(v T) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- v:
		default:
			if s.onDrop != nil {
				s.onDrop()
			}
		}
	}
}

// Close closes every listener channel.
func (s *sink[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
}
