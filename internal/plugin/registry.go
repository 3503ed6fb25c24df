package plugin

import (
	"fmt"
	"slices"
	"sync"
)

// Registry keeps plugins in registration order. Names are unique.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewRegistry creates a new empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a plugin. Nil plugins, invalid metadata and duplicate names are rejected.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("cannot register nil plugin")
	}
	md := p.Metadata()
	if err := md.Validate(); err != nil {
		return fmt.Errorf("invalid plugin metadata: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plugins {
		if existing.Metadata().Name == md.Name {
			return fmt.Errorf("plugin %s already registered", md.Name)
		}
	}
	r.plugins = append(r.plugins, p)
	return nil
}

// List returns the plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.plugins)
}

// Names returns plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Metadata().Name
	}
	return names
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if p.Metadata().Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plugin %s not found", name)
}

// Has checks if a plugin with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
