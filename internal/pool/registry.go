package pool

import (
	"sort"

	"nostr-relaypool/internal/types"
)

// Registry tracks the active subscriptions by id. It is not safe for
// concurrent use; the dispatch loop is its only user.
type Registry struct {
	subs map[string]types.Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]types.Filter)}
}

// Put registers sub, replacing any filter stored under the same id.
func (r *Registry) Put(sub types.Subscription) (replaced bool) {
	_, replaced = r.subs[sub.ID]
	r.subs[sub.ID] = sub.Filter
	return replaced
}

// Delete removes id and reports whether it was present.
func (r *Registry) Delete(id string) bool {
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// Get returns the filter registered for id.
func (r *Registry) Get(id string) (types.Filter, bool) {
	f, ok := r.subs[id]
	return f, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.subs[id]
	return ok
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return len(r.subs)
}

// All returns the subscriptions ordered by id.
func (r *Registry) All() []types.Subscription {
	out := make([]types.Subscription, 0, len(r.subs))
	for id, f := range r.subs {
		out = append(out, types.Subscription{ID: id, Filter: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of the id to filter mapping.
func (r *Registry) Snapshot() map[string]types.Filter {
	out := make(map[string]types.Filter, len(r.subs))
	for id, f := range r.subs {
		out[id] = f
	}
	return out
}
