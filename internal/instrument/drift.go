// Package instrument - Constant-drift snapshots.
package instrument

import (
	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/guard/drift"
	"github.com/kolkov/modguard/internal/resolve"
)

// DriftTransformer snapshots watched static fields at the end of static
// initialization and registers them with the watchdog registry.
//
// For each qualifying field F of a watched type:
//
//	public static synthetic java.lang.String $modguard$snapshot$F
//	<clinit> epilogue: drift.snapshot(F, $modguard$snapshot$F)
//
// Only static fields of non-primitive type qualify; for types with an
// allow-list only the listed fields do.
type DriftTransformer struct {
	registry *drift.Registry
}

// NewDriftTransformer returns a transformer registering into registry.
func NewDriftTransformer(registry *drift.Registry) *DriftTransformer {
	return &DriftTransformer{registry: registry}
}

// Name implements Transformer.
func (t *DriftTransformer) Name() string {
	return "constant-drift"
}

// Requires implements Transformer. Every watched type is a core module.
func (t *DriftTransformer) Requires(module string) bool {
	_, ok := driftWatched[module]
	return ok
}

// Transform implements Transformer.
func (t *DriftTransformer) Transform(_ *resolve.Context, m *classfile.Module) (bool, error) {
	fields := t.watchedFields(m)
	if len(fields) == 0 {
		return false, nil
	}

	if m.HasInterface(DriftMarker) {
		return false, newDuplicateMarkerError(t.Name(), m.Name, DriftMarker)
	}

	clinit := m.StaticInit()
	if clinit == nil {
		clinit = &classfile.Method{
			Name:       classfile.StaticInitName,
			Descriptor: classfile.NoArgDescriptor,
			Modifiers:  classfile.Static | classfile.Synthetic,
		}
		if err := m.AddMethod(clinit); err != nil {
			return false, err
		}
	}

	for _, f := range fields {
		shadow := SnapshotPrefix + f.Name
		if err := m.AddField(&classfile.Field{
			Name:      shadow,
			Type:      StringType,
			Modifiers: classfile.Public | classfile.Static | classfile.Synthetic,
		}); err != nil {
			return false, err
		}
		clinit.AppendEpilogue(classfile.NewProbe(classfile.ProbeSnapshot, f.Name, shadow))
		t.registry.Register(drift.Record{Module: m.Name, Field: f.Name, Shadow: shadow})
	}

	if err := m.AddInterface(DriftMarker); err != nil {
		return false, err
	}
	return true, nil
}

// watchedFields returns the qualifying static fields of m in declaration order.
func (t *DriftTransformer) watchedFields(m *classfile.Module) []*classfile.Field {
	allow, watched := driftWatched[m.Name]
	if !watched {
		return nil
	}

	var out []*classfile.Field
	for _, f := range m.Fields {
		if !f.IsStatic() || classfile.IsPrimitive(f.Type) || f.Modifiers.Has(classfile.Synthetic) {
			continue
		}
		if allow != nil && !allow[f.Name] {
			continue
		}
		out = append(out, f)
	}
	return out
}
