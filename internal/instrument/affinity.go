// Package instrument - Thread-affinity checks.
package instrument

import (
	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/resolve"
)

// InjectionPoint is a method selected for a probe.
// Exported for testing purposes.
type InjectionPoint struct {
	Method *classfile.Method
	Probe  classfile.Probe
}

// AffinityTransformer injects owning-thread designation and checks.
//
// Two-Pass Algorithm:
//
//	Pass 1 (Select): walk every method, record injection points
//	Pass 2 (Apply):  verify the marker is absent, prepend the probes
//
// A type that directly implements OwnerCapability is an owner: its
// constructors record the owning thread and nothing else is selected.
//
// Selection for every other type, per method or constructor:
//  1. Rule table: the module is listed in affinityRules and the method is
//     a constructor or one of the enumerated names
//  2. Tag opt-in: any method tagged with a name ending in AffinityTagSuffix
//
// Either is sufficient. Abstract and native methods have no body to guard
// and are never selected. A method matching no rule is simply left alone.
type AffinityTransformer struct{}

// NewAffinityTransformer returns the thread-affinity transformer.
func NewAffinityTransformer() *AffinityTransformer {
	return &AffinityTransformer{}
}

// Name implements Transformer.
func (t *AffinityTransformer) Name() string {
	return "thread-affinity"
}

// Requires implements Transformer. Rule-table types are instrumented even
// when they live under a core prefix.
func (t *AffinityTransformer) Requires(module string) bool {
	_, ok := affinityRules[module]
	return ok
}

// Transform implements Transformer.
func (t *AffinityTransformer) Transform(_ *resolve.Context, m *classfile.Module) (bool, error) {
	points := t.Select(m)
	if len(points) == 0 {
		return false, nil
	}

	if m.HasInterface(AffinityMarker) {
		return false, newDuplicateMarkerError(t.Name(), m.Name, AffinityMarker)
	}

	// Apply in reverse so that, for a method selected twice, the first
	// recorded probe ends up first in the prologue.
	for i := len(points) - 1; i >= 0; i-- {
		points[i].Method.PrependProbe(points[i].Probe)
	}

	if err := m.AddInterface(AffinityMarker); err != nil {
		return false, err
	}
	return true, nil
}

// Select runs pass 1 and returns the injection points for m without
// mutating it.
func (t *AffinityTransformer) Select(m *classfile.Module) []InjectionPoint {
	var points []InjectionPoint

	if isOwner(m) {
		for _, ctor := range m.Constructors() {
			points = append(points, InjectionPoint{
				Method: ctor,
				Probe:  classfile.NewProbe(classfile.ProbeRecordOwner),
			})
		}
		return points
	}

	rule, hasRule := affinityRules[m.Name]
	for _, meth := range m.Methods {
		if meth.Modifiers.Has(classfile.Abstract) || meth.Modifiers.Has(classfile.Native) {
			continue
		}
		if meth.Name == classfile.StaticInitName {
			continue
		}

		byRule := hasRule && (meth.IsConstructor() && rule.constructors || rule.methods[meth.Name])
		byTag := meth.HasTagSuffix(AffinityTagSuffix)
		if !byRule && !byTag {
			continue
		}

		points = append(points, InjectionPoint{
			Method: meth,
			Probe:  classfile.NewProbe(classfile.ProbeCheckOwner, m.Name+"."+meth.Name),
		})
	}
	return points
}

// isOwner reports whether m declares OwnerCapability itself. Inherited
// implementations do not count.
func isOwner(m *classfile.Module) bool {
	return !m.IsInterface() && m.HasInterface(OwnerCapability)
}
