// Package plugin holds the generators available to the de-identification
// engine. The host builds one Registry at startup and hands it to every
// engine as its deid.GeneratorProvider.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ehr/hl7deid/internal/platform/deid"
)

// Registry holds registered generators by name.
type Registry struct {
	mu         sync.RWMutex
	generators []deid.Generator
	byName     map[string]deid.Generator
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]deid.Generator)}
}

// Register adds g. Names must be unique and non-empty.
func (r *Registry) Register(g deid.Generator) error {
	if g == nil {
		return fmt.Errorf("plugin: nil generator")
	}
	name := g.Name()
	if name == "" {
		return fmt.Errorf("plugin: generator has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("plugin: generator %q already registered", name)
	}
	r.byName[name] = g
	r.generators = append(r.generators, g)
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(gs ...deid.Generator) {
	for _, g := range gs {
		if err := r.Register(g); err != nil {
			panic(err)
		}
	}
}

// Lookup implements deid.GeneratorProvider.
func (r *Registry) Lookup(name string) (deid.Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byName[name]
	return g, ok
}

// Generators returns the registered generators in registration order.
func (r *Registry) Generators() []deid.Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]deid.Generator(nil), r.generators...)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
