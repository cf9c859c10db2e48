package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a named collection of executors that can be looked up at
// runtime. It is safe for concurrent use.
type Registry struct {
	executors map[string]Executor
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor under its own name. A second executor with the
// same name replaces the first.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Name()] = e
}

// Get retrieves an executor by name.
func (r *Registry) Get(name string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return e, nil
}

// List returns the names of all registered executors in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for n := range r.executors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
