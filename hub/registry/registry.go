// Package registry provides the typed lookup used to resolve application
// and plugin module names to explicitly registered units, replacing
// dynamic loading of code by config-driven strings.
package registry

import (
	"sort"
	"sync"
)

// Registry maps module names to registered units. A unit is any value; the
// consumer asserts the capability it needs (a start capability for
// applications, server-configuration or template capabilities for
// plugins).
type Registry struct {
	mu    sync.RWMutex
	units map[string]any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{units: make(map[string]any)}
}

// Register binds a module name to a unit, replacing any previous binding.
func (r *Registry) Register(module string, unit any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[module] = unit
}

// Lookup resolves a module name.
func (r *Registry) Lookup(module string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	unit, ok := r.units[module]
	return unit, ok
}

// Modules returns the registered module names, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]string, 0, len(r.units))
	for module := range r.units {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}
