package pagestore

import (
	"fmt"
	"sync"
)

// MapScope is a Scope backed by an insertion-ordered map
type MapScope struct {
	mu     sync.RWMutex
	names  []string
	values map[string]any
}

// NewMapScope creates an empty scope
func NewMapScope() *MapScope {
	return &MapScope{values: make(map[string]any)}
}

// Set defines or replaces a global
func (s *MapScope) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = v
}

// Names implements Scope
func (s *MapScope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Lookup implements Scope
func (s *MapScope) Lookup(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// ChunkRegistry is an array-like module registry. A pushed chunk's loader runs
// synchronously with a resolver over every module defined so far.
type ChunkRegistry struct {
	mu        sync.RWMutex
	order     []string
	factories map[string]func() (any, error)
	chunks    int
}

// NewChunkRegistry creates an empty registry
func NewChunkRegistry() *ChunkRegistry {
	return &ChunkRegistry{factories: make(map[string]func() (any, error))}
}

// Define registers a module factory under id
func (r *ChunkRegistry) Define(id string, factory func() (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; !ok {
		r.order = append(r.order, id)
	}
	r.factories[id] = factory
}

// DefineValue registers a module whose export is v
func (r *ChunkRegistry) DefineValue(id string, v any) {
	r.Define(id, func() (any, error) { return v, nil })
}

// Push implements ModuleRegistry
func (r *ChunkRegistry) Push(c Chunk) error {
	r.mu.Lock()
	for _, id := range c.ModuleIDs {
		if _, ok := r.factories[id]; !ok {
			r.order = append(r.order, id)
			r.factories[id] = func() (any, error) { return nil, nil }
		}
	}
	r.chunks++
	r.mu.Unlock()

	if c.Loader != nil {
		c.Loader(r)
	}
	return nil
}

// Len returns the number of chunks pushed
func (r *ChunkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunks
}

// ModuleIDs implements Require
func (r *ChunkRegistry) ModuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Load implements Require
func (r *ChunkRegistry) Load(id string) (any, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module %s not defined", id)
	}
	return factory()
}

// DefaultExport wraps a value as a module's default export
type DefaultExport struct {
	Value any
}

// Default implements Defaulter
func (d DefaultExport) Default() any {
	return d.Value
}
