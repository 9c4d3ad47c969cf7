package engine

import (
	"slices"
	"sync"
)

// Registry maps failure ids to frozen runs.
//
// Ids come from a monotonic clock and are never reused. Each entry is
// consumed by exactly one resumption.
//
// Thread-safety: all methods are safe for concurrent use. A run may freeze
// on one goroutine while another resumes a different failure.
type Registry[E any] struct {
	mu      sync.Mutex
	ids     *Clock
	entries map[int64]FailureContext[E]
}

// NewRegistry creates an empty registry whose first id is 1.
func NewRegistry[E any]() *Registry[E] {
	return &Registry[E]{ids: NewClock(), entries: make(map[int64]FailureContext[E])}
}

// Store saves fc under a fresh id and returns the id.
func (r *Registry[E]) Store(fc FailureContext[E]) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.ids.Next()
	r.entries[id] = fc
	return id
}

// Take removes and returns the entry for id.
func (r *Registry[E]) Take(id int64) (FailureContext[E], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fc, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return fc, ok
}

// takeIf removes the entry for id only if accept returns nil for it.
// A missing entry or a rejected one leaves the registry as it was.
func (r *Registry[E]) takeIf(id int64, accept func(FailureContext[E]) error) (FailureContext[E], bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fc, ok := r.entries[id]
	if !ok {
		return fc, false, nil
	}
	if err := accept(fc); err != nil {
		return fc, true, err
	}
	delete(r.entries, id)
	return fc, true, nil
}

// Peek returns the entry for id without consuming it.
func (r *Registry[E]) Peek(id int64) (FailureContext[E], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fc, ok := r.entries[id]
	return fc, ok
}

// Len returns the number of unconsumed failures.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the unconsumed failure ids in ascending order.
func (r *Registry[E]) IDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
