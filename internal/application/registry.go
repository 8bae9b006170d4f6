package application

import (
	"sort"
	"sync"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// AdapterRegistry maps platform names to their account adapters. It allows
// runtime replacement of an adapter without restarting the reconciler.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[model.Platform]driven.PlatformAccountAdapter
}

// NewAdapterRegistry creates a registry holding the given adapters, keyed by
// their Platform().
func NewAdapterRegistry(adapters ...driven.PlatformAccountAdapter) *AdapterRegistry {
	r := &AdapterRegistry{adapters: make(map[model.Platform]driven.PlatformAccountAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Register adds or replaces the adapter for its platform.
func (r *AdapterRegistry) Register(a driven.PlatformAccountAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for platform, or (nil, false) if none is registered.
func (r *AdapterRegistry) Get(platform model.Platform) (driven.PlatformAccountAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	return a, ok
}

// Platforms returns the platforms with a registered adapter, sorted by name.
func (r *AdapterRegistry) Platforms() []model.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
