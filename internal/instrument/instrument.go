// Package instrument implements load-time instrumentation of modules with
// diagnostic runtime checks.
//
// This package is the core of modguard. It receives a decoded module,
// runs a fixed sequence of transformers over its structural model, and
// reports whether any of them mutated it. Each transformer injects probes
// that the runtime side (internal/guard) executes:
//
//   - DriftTransformer: snapshots watched static fields after static
//     initialization and registers them with the constant-drift watchdog
//   - AffinityTransformer: records the owning thread in the owner-role
//     constructor and checks it in front of thread-affine operations
//   - LeakTransformer: tracks construction and release of resource-owning
//     types and reports instances that are never (or doubly) released
//
// Example Transformation (LeakTransformer with CloseableSpec):
//
//	// INPUT (module model):
//	class com.example.Conn implements java.lang.AutoCloseable
//	    <init>()V
//	    close()V
//
//	// OUTPUT:
//	class com.example.Conn implements java.lang.AutoCloseable, modguard.marker.CloseTracked
//	    private transient synthetic modguard.Context $modguard$CloseTracked
//	    <init>()V      prologue: leak.track($modguard$CloseTracked)
//	    close()V       prologue: leak.release($modguard$CloseTracked)
//	    finalize()V    prologue: leak.check($modguard$CloseTracked)
//	                   epilogue: leak.release($modguard$CloseTracked)
//
// Idempotence: every transformer tags the module with a marker capability
// once it has applied its mutation. Finding the marker on a module the
// transformer would mutate again means the same transformer ran twice; that
// is reported as a *DuplicateMarkerError and aborts the load.
//
// Thread Safety: Transformers hold no per-module state and may be shared by
// concurrent load events. The Module and resolve.Context passed to
// Transform are owned by a single event.
package instrument

import (
	"strings"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/resolve"
)

const (
	// SyntheticPrefix starts the name of every field this package injects.
	SyntheticPrefix = "$modguard$"

	// ContextType is the declared type of injected captured-context fields.
	ContextType = "modguard.Context"

	// StringType is the declared type of injected snapshot fields.
	StringType = "java.lang.String"
)

// CorePrefixes are module name prefixes of the platform core. Modules under
// them are skipped unless a transformer explicitly requires them.
var CorePrefixes = []string{
	"java.",
	"javax.",
	"jdk.",
	"sun.",
	"com.sun.",
}

// Transformer analyses and mutates one module.
type Transformer interface {
	// Name identifies the transformer in logs and errors.
	Name() string

	// Requires reports whether the transformer needs to see the named
	// module even though it lives under a core prefix.
	Requires(module string) bool

	// Transform mutates m in place and reports whether it changed.
	// rc resolves ancestors on behalf of the current load event.
	Transform(rc *resolve.Context, m *classfile.Module) (bool, error)
}

// IsCoreModule reports whether name lives under a core prefix.
func IsCoreModule(name string) bool {
	return hasAnyPrefix(name, CorePrefixes)
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// markerSuffix returns the last dotted segment of a marker name.
func markerSuffix(marker string) string {
	if i := strings.LastIndexByte(marker, '.'); i >= 0 {
		return marker[i+1:]
	}
	return marker
}
