package imbalance

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named calculator strategies for selection by config.
type Registry struct {
	calcs map[string]Calculator
	mu    sync.RWMutex
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{calcs: make(map[string]Calculator)}
	r.Register(NewVolumeWeighted(cfg))
	r.Register(NewDepthDecay(cfg))
	return r
}

// Register adds a calculator under its own name.
func (r *Registry) Register(c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calcs[c.Name()] = c
}

// Get returns the calculator by name, or an error if not found.
func (r *Registry) Get(name string) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calcs[name]
	if !ok {
		return nil, fmt.Errorf("imbalance calculator %q not found (have %v)", name, r.listLocked())
	}
	return c, nil
}

// List returns all registered calculator names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	names := make([]string, 0, len(r.calcs))
	for n := range r.calcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
