package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh, unconfigured connector instance.
type Factory func() Connector

// Registry maps node_type to connector factories. Registration happens once
// during startup, before any run; the registry is read-only afterwards, so
// concurrent runs share it without coordination beyond the internal lock.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given node_type. Registering the same id
// twice replaces the earlier factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// New returns a fresh connector instance for the node_type, or an error when
// the type is unregistered. Each node execution gets its own instance so
// Configure state never leaks between nodes or runs.
func (r *Registry) New(id string) (Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connector type: %q", id)
	}
	return f(), nil
}

// Get returns a descriptor instance for the node_type, or nil when
// unregistered. The instance is for inspection (Kind, ConfigSchema) only.
func (r *Registry) Get(id string) Connector {
	c, err := r.New(id)
	if err != nil {
		return nil
	}
	return c
}

// IDs returns all registered node_types, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
