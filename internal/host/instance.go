package host

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/modguard/internal/guard/goid"
)

// Instance is one constructed object of a loaded module.
type Instance struct {
	lm *loadedModule

	mu       sync.Mutex
	fields   map[string]any
	released map[string]any // previous-release contexts, by tracked field

	// monitor serializes release methods guarded against double release.
	monitor   monitor
	finalized atomic.Bool
}

func newInstance(lm *loadedModule) *Instance {
	return &Instance{
		lm:       lm,
		fields:   make(map[string]any),
		released: make(map[string]any),
	}
}

// Module returns the name of the instance's module.
func (i *Instance) Module() string {
	return i.lm.module.Name
}

// Get returns the value of an instance field, nil when unset.
func (i *Instance) Get(field string) any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fields[field]
}

// Set assigns an instance field.
func (i *Instance) Set(field string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if value == nil {
		delete(i.fields, field)
		return
	}
	i.fields[field] = value
}

// Finalized reports whether the finalize chain has run.
func (i *Instance) Finalized() bool {
	return i.finalized.Load()
}

// swapReleased stores ctx as the latest release context of field and
// returns the previous one.
func (i *Instance) swapReleased(field string, ctx any) any {
	i.mu.Lock()
	defer i.mu.Unlock()
	prev := i.released[field]
	i.released[field] = ctx
	return prev
}

// monitor is a reentrant lock keyed by goroutine. A guarded release method
// that calls another guarded release method of the same instance (dispose
// calling close) re-enters instead of blocking on itself.
type monitor struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int // Guarded by mu
}

// Lock acquires the monitor, or deepens the hold of the calling goroutine.
func (m *monitor) Lock() {
	id := goid.Current()
	if id != 0 && m.owner.Load() == id {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

// Unlock releases one level of the hold.
func (m *monitor) Unlock() {
	m.depth--
	if m.depth > 0 {
		return
	}
	m.owner.Store(0)
	m.mu.Unlock()
}
