// Package registry provides an explicit registry of named factories.
// A registry is built once at application start and passed to the
// components that need to look implementations up by name (digit
// classifiers, frame sources), so no registration happens in init().
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Info contains metadata about a registered entry.
type Info struct {
	ID    string
	Title string
}

// Factory is a function that creates a new instance.
type Factory[T any] func() (T, error)

type entry[T any] struct {
	title   string
	factory Factory[T]
}

// Registry maps IDs to factories. The zero value is not usable; call New.
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]entry[T]
}

// New creates an empty registry. kind names what it holds and appears in
// error messages (e.g. "classifier").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]entry[T]),
	}
}

// Register adds a factory to the registry.
// Panics if an entry with the same ID is already registered.
func (r *Registry[T]) Register(id, title string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		panic(fmt.Sprintf("registry: %s %q already registered", r.kind, id))
	}
	r.entries[id] = entry[T]{title: title, factory: f}
}

// List returns information about all registered entries, sorted by ID.
func (r *Registry[T]) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.entries))
	for id, e := range r.entries {
		result = append(result, Info{ID: id, Title: e.title})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Create instantiates a new entry by its ID.
// Returns an error if the ID is not registered or the factory fails.
func (r *Registry[T]) Create(id string) (T, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("registry: unknown %s %q", r.kind, id)
	}

	v, err := e.factory()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("registry: cannot create %s %q: %w", r.kind, id, err)
	}
	return v, nil
}

// Exists checks if an entry with the given ID is registered.
func (r *Registry[T]) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]
	return ok
}
