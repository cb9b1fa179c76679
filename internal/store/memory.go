package store

import (
	"context"
	"sort"
	"sync"

	"nostr-relaypool/internal/types"
)

// MemoryStore implements RelayStore using sync.Map
type MemoryStore struct {
	data sync.Map
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, ep types.RelayEndpoint) error {
	m.data.Store(ep.URL, ep)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, url string) (types.RelayEndpoint, error) {
	val, ok := m.data.Load(url)
	if !ok {
		return types.RelayEndpoint{}, ErrNotFound
	}
	return val.(types.RelayEndpoint), nil
}

func (m *MemoryStore) GetAll(ctx context.Context) ([]types.RelayEndpoint, error) {
	var out []types.RelayEndpoint
	m.data.Range(func(_, value interface{}) bool {
		out = append(out, value.(types.RelayEndpoint))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, url string) error {
	m.data.Delete(url)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
