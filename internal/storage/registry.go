package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory opens a store for a backend. Options are backend specific.
type Factory func(ctx context.Context) (QuotaStore, error)

// Registry maps backend names to factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(backend string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backend] = factory
}

// Create opens the store registered under backend
func (r *Registry) Create(ctx context.Context, backend string) (QuotaStore, error) {
	r.mu.RLock()
	factory, ok := r.factories[backend]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("storage backend %s not registered", backend)
	}
	return factory(ctx)
}

// Backends lists registered backend names in sorted order
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
