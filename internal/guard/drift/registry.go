// Package drift watches static fields that are meant to behave as
// immutable constants.
//
// At transform time each watched field gets a shadow field holding the
// string form of its value right after static initialization, and the
// (field, shadow) pair is registered here. A Watchdog then periodically
// compares the live value against the shadow and reports every mismatch.
// The shadow is never updated, so a drifted field is reported again on
// every tick until its value returns to the snapshot.
package drift

import (
	"sort"
	"sync"
)

// Record pairs a watched static field with its shadow snapshot field.
type Record struct {
	Module string // Declaring module
	Field  string // Watched static field
	Shadow string // Synthetic static field holding the snapshot string
}

// Key returns the field identity, "module#field".
func (r Record) Key() string {
	return r.Module + "#" + r.Field
}

// Registry is the process-wide set of watched fields.
//
// Records are written once, when the declaring module is transformed, and
// never removed. Thread Safety: safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]Record)}
}

// Register adds r. Returns false if the field was already registered, in
// which case the existing record is kept.
func (reg *Registry) Register(r Record) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.records[r.Key()]; exists {
		return false
	}
	reg.records[r.Key()] = r
	return true
}

// Len returns the number of registered records.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.records)
}

// Records returns a snapshot of all records sorted by key.
func (reg *Registry) Records() []Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.sortedLocked()
}

// each calls fn for every record, in key order, while holding the lock.
func (reg *Registry) each(fn func(Record)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, r := range reg.sortedLocked() {
		fn(r)
	}
}

func (reg *Registry) sortedLocked() []Record {
	out := make([]Record, 0, len(reg.records))
	for _, r := range reg.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
