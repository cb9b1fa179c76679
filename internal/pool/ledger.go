package pool

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Ledger remembers which event ids have already been surfaced.
type Ledger interface {
	// Mark records id and reports whether it was seen for the first time.
	Mark(id string) bool
	// Len returns the number of remembered ids.
	Len() int
}

// NewLedger returns an unbounded ledger for size <= 0, otherwise one that
// remembers only the size most recently seen ids.
func NewLedger(size int) (Ledger, error) {
	if size <= 0 {
		return &unboundedLedger{seen: make(map[string]struct{})}, nil
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &lruLedger{cache: cache}, nil
}

// unboundedLedger grows for the lifetime of the pool.
type unboundedLedger struct {
	seen map[string]struct{}
}

func (l *unboundedLedger) Mark(id string) bool {
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	return true
}

func (l *unboundedLedger) Len() int {
	return len(l.seen)
}

// lruLedger forgets the least recently seen id once full, so an id evicted
// from the window can be surfaced again.
type lruLedger struct {
	cache *lru.Cache[string, struct{}]
}

func (l *lruLedger) Mark(id string) bool {
	if _, ok := l.cache.Get(id); ok {
		return false
	}
	l.cache.Add(id, struct{}{})
	return true
}

func (l *lruLedger) Len() int {
	return l.cache.Len()
}
