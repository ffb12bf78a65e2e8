// Package resolve turns module names into structural models on behalf of a
// single load event.
//
// The requesting program's load namespace is abstracted as a Namespace: a
// lookup from fully qualified module name to raw module bytes. A Context
// wraps one Namespace for the duration of one transform call, decoding
// modules lazily and caching both hits and misses.
//
// Resolution may legitimately fail. Ancestors of a module can live outside
// the namespace, be corrupt, or simply not exist yet; none of these is an
// error. Lookup reports them as Absent or Unresolvable and capability checks
// treat both as "capability not present".
package resolve

import (
	"os"
	"path/filepath"
	"sync"
)

// FileExt is the file extension of encoded modules in a DirNamespace.
const FileExt = ".mgm"

// Namespace supplies raw module bytes by fully qualified name.
type Namespace interface {
	// Find returns the encoded module, or false if the namespace does not
	// define it.
	Find(name string) ([]byte, bool)
}

// MapNamespace is an in-memory Namespace. It is safe for concurrent use.
type MapNamespace struct {
	mu      sync.RWMutex
	modules map[string][]byte
}

// NewMapNamespace returns an empty in-memory namespace.
func NewMapNamespace() *MapNamespace {
	return &MapNamespace{modules: make(map[string][]byte)}
}

// Define registers raw bytes under name, replacing any earlier definition.
func (ns *MapNamespace) Define(name string, raw []byte) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.modules[name] = raw
}

// Find implements Namespace.
func (ns *MapNamespace) Find(name string) ([]byte, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	raw, ok := ns.modules[name]
	return raw, ok
}

// DirNamespace resolves module "a.b.C" to the file <Root>/a.b.C.mgm.
type DirNamespace struct {
	Root string
}

// Find implements Namespace. Unreadable files are reported as missing.
func (ns DirNamespace) Find(name string) ([]byte, bool) {
	if name == "" || filepath.Base(name) != name {
		return nil, false
	}
	raw, err := os.ReadFile(filepath.Join(ns.Root, name+FileExt))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Chain delegates to each namespace in order and returns the first hit,
// mirroring parent-first delegation between nested loaders.
type Chain []Namespace

// Find implements Namespace.
func (c Chain) Find(name string) ([]byte, bool) {
	for _, ns := range c {
		if ns == nil {
			continue
		}
		if raw, ok := ns.Find(name); ok {
			return raw, true
		}
	}
	return nil, false
}
