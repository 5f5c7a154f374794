package deid

import "sort"

// Item is the value handed to a generator.
type Item interface {
	Value() string
}

type valueItem string

func (v valueItem) Value() string { return string(v) }

// Context carries the hints a generator may use besides the value itself.
type Context struct {
	ID     string // component identifier, e.g. "PID-5.1"
	Type   string // free-form classification from the configuration
	Gender Gender // derived once per message
}

// Generator produces a replacement value. Implementations must not depend on
// message state and must be safe for concurrent use.
type Generator interface {
	Name() string
	Generate(item Item, ctx Context) (string, error)
}

// GeneratorProvider resolves generator names. The host builds it at startup.
type GeneratorProvider interface {
	Lookup(name string) (Generator, bool)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc struct {
	name string
	fn   func(item Item, ctx Context) (string, error)
}

// NewGeneratorFunc returns a named Generator backed by fn.
func NewGeneratorFunc(name string, fn func(item Item, ctx Context) (string, error)) *GeneratorFunc {
	return &GeneratorFunc{name: name, fn: fn}
}

func (g *GeneratorFunc) Name() string { return g.name }

func (g *GeneratorFunc) Generate(item Item, ctx Context) (string, error) {
	return g.fn(item, ctx)
}

// Generators is a fixed GeneratorProvider, handy when no registry is needed.
type Generators map[string]Generator

func (gs Generators) Lookup(name string) (Generator, bool) {
	g, ok := gs[name]
	return g, ok && g != nil
}

// Names returns the registered names in sorted order.
func (gs Generators) Names() []string {
	names := make([]string, 0, len(gs))
	for name := range gs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
