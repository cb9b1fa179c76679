package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue[int]()
	_, ok := q.Pop()
	assert.False(t, ok)

	for i := range 5 {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())

	for i := range 5 {
		<-q.Ready()
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	select {
	case <-q.Ready():
		t.Fatal("ready signalled on an empty queue")
	default:
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newQueue[int]()
	const producers, per = 8, 500

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range per {
				q.Push(p*per + i)
			}
		}()
	}

	seen := make(map[int]bool, producers*per)
	for len(seen) < producers*per {
		<-q.Ready()
		if v, ok := q.Pop(); ok {
			seen[v] = true
		}
	}
	wg.Wait()
	assert.Zero(t, q.Len())
}
