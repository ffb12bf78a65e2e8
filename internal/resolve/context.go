package resolve

import (
	"github.com/kolkov/modguard/internal/classfile"
)

// Result classifies the outcome of a lookup.
type Result int

const (
	// Present means the module was found and decoded.
	Present Result = iota
	// Absent means the namespace does not define the module.
	Absent
	// Unresolvable means the module exists but could not be decoded.
	Unresolvable
)

// String returns the string representation of a Result.
func (r Result) String() string {
	switch r {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case Unresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

type entry struct {
	module *classfile.Module
	result Result
}

// Context resolves names for exactly one load event.
//
// Thread Safety: NOT thread-safe. Each load event owns its own Context.
type Context struct {
	ns    Namespace
	cache map[string]entry
}

// New returns a Context bound to ns. A nil ns resolves nothing.
func New(ns Namespace) *Context {
	return &Context{
		ns:    ns,
		cache: make(map[string]entry),
	}
}

// Bind seeds the cache with a live model, typically the module being
// transformed, so lookups of its own name observe in-flight mutations.
func (c *Context) Bind(m *classfile.Module) {
	c.cache[m.Name] = entry{module: m, result: Present}
}

// Lookup resolves name. The returned module is nil unless the result is Present.
func (c *Context) Lookup(name string) (*classfile.Module, Result) {
	if e, ok := c.cache[name]; ok {
		return e.module, e.result
	}

	e := c.load(name)
	c.cache[name] = e
	return e.module, e.result
}

func (c *Context) load(name string) entry {
	if c.ns == nil || name == "" {
		return entry{result: Absent}
	}
	raw, ok := c.ns.Find(name)
	if !ok {
		return entry{result: Absent}
	}
	m, err := classfile.Decode(raw)
	if err != nil || m.Name != name {
		return entry{result: Unresolvable}
	}
	return entry{module: m, result: Present}
}

// Implements reports whether m declares capability directly or through any
// ancestor: its interfaces (and their super-interfaces) and its superclass
// chain. Ancestors that are Absent or Unresolvable contribute nothing; the
// walk never fails.
func (c *Context) Implements(m *classfile.Module, capability string) bool {
	return c.ImplementsUnless(m, capability, nil)
}

// ImplementsUnless is Implements with a stop predicate: a type for which
// excluded returns true answers "no", and the walk does not continue
// through it. m itself is tested too.
func (c *Context) ImplementsUnless(m *classfile.Module, capability string, excluded func(name string) bool) bool {
	w := walk{ctx: c, capability: capability, excluded: excluded, visited: make(map[string]bool)}
	return w.module(m)
}

// walk is one capability search.
type walk struct {
	ctx        *Context
	capability string
	excluded   func(string) bool
	visited    map[string]bool
}

func (w *walk) stop(name string) bool {
	return w.excluded != nil && w.excluded(name)
}

func (w *walk) module(m *classfile.Module) bool {
	if m == nil || w.visited[m.Name] || w.stop(m.Name) {
		return false
	}
	w.visited[m.Name] = true

	if m.Name == w.capability {
		return true
	}
	for _, iface := range m.Interfaces {
		if w.ancestor(iface) {
			return true
		}
	}
	if m.Super != "" {
		return w.ancestor(m.Super)
	}
	return false
}

func (w *walk) ancestor(name string) bool {
	if w.stop(name) {
		return false
	}
	if name == w.capability {
		return true
	}
	ancestor, result := w.ctx.Lookup(name)
	if result != Present {
		return false
	}
	return w.module(ancestor)
}
