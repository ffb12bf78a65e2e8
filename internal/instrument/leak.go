// Package instrument - Disposal leak tracking.
package instrument

import (
	"fmt"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/resolve"
)

// LeakSpec names one release protocol: a capability interface and the
// no-argument method that releases the resource.
type LeakSpec struct {
	Name          string // Transformer name, e.g. "leak(close)"
	Capability    string // Interface implemented (transitively) by tracked types
	ReleaseMethod string // Concrete method that releases the resource
	Marker        string // Marker capability added once a type is instrumented
}

// FieldName returns the name of the injected captured-context field.
func (s LeakSpec) FieldName() string {
	return SyntheticPrefix + markerSuffix(s.Marker)
}

// LeakTransformer injects leak and (optionally) double-release tracking
// into types implementing a release capability.
//
// Qualification:
//  1. The module is not an interface or a core module
//  2. The module implements spec.Capability, directly or through any
//     resolvable ancestor (unresolvable ancestors count as "no"). The walk
//     stops at any type under LeakDenyPrefixes, so the module itself and
//     everything reached only through a denied ancestor is excluded
//  3. The module declares a concrete no-argument release method
//
// Injection:
//   - a private transient context field, set by every constructor
//   - release prologue clears the field (double-release aware if enabled)
//   - finalize prologue reports the context if the field is still set,
//     finalize epilogue clears it
//   - the marker capability
type LeakTransformer struct {
	spec          LeakSpec
	doubleRelease bool
	unreleased    bool
}

// LeakOption configures a LeakTransformer.
type LeakOption func(*LeakTransformer)

// WithoutUnreleasedCheck disables construction tracking and the
// finalization check, leaving only double-release detection.
func WithoutUnreleasedCheck() LeakOption {
	return func(t *LeakTransformer) {
		t.unreleased = false
	}
}

// NewLeakTransformer returns a transformer for spec. When doubleRelease is
// set, release calls run under the instance lock and a second release of
// the same instance is reported.
func NewLeakTransformer(spec LeakSpec, doubleRelease bool, opts ...LeakOption) *LeakTransformer {
	t := &LeakTransformer{spec: spec, doubleRelease: doubleRelease, unreleased: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Transformer.
func (t *LeakTransformer) Name() string {
	return t.spec.Name
}

// Spec returns the release protocol this transformer tracks.
func (t *LeakTransformer) Spec() LeakSpec {
	return t.spec
}

// Requires implements Transformer. Leak tracking never instruments core modules.
func (t *LeakTransformer) Requires(string) bool {
	return false
}

// Transform implements Transformer.
func (t *LeakTransformer) Transform(rc *resolve.Context, m *classfile.Module) (bool, error) {
	if !t.unreleased && !t.doubleRelease {
		return false, nil
	}
	if !t.qualifies(rc, m) {
		return false, nil
	}
	releases := t.releaseMethods(m)
	if len(releases) == 0 {
		return false, nil
	}

	releaseOp := classfile.ProbeLeakRelease
	if t.doubleRelease && !doubleReleaseSafe[m.Name] {
		releaseOp = classfile.ProbeLeakReleaseOnce
	}
	if !t.unreleased && releaseOp != classfile.ProbeLeakReleaseOnce {
		return false, nil
	}

	if m.HasInterface(t.spec.Marker) {
		return false, newDuplicateMarkerError(t.Name(), m.Name, t.spec.Marker)
	}

	field := t.spec.FieldName()
	if err := m.AddField(&classfile.Field{
		Name:      field,
		Type:      ContextType,
		Modifiers: classfile.Private | classfile.Transient | classfile.Synthetic,
	}); err != nil {
		return false, err
	}

	if t.unreleased {
		if err := t.trackConstruction(m, field); err != nil {
			return false, err
		}
	}

	// Release: clear the context.
	for _, release := range releases {
		release.PrependProbe(classfile.NewProbe(releaseOp, field))
	}

	if err := m.AddInterface(t.spec.Marker); err != nil {
		return false, err
	}
	return true, nil
}

// trackConstruction captures the creation context in every constructor and
// reports it from finalize if it is still set, then clears it.
func (t *LeakTransformer) trackConstruction(m *classfile.Module, field string) error {
	ctors := m.Constructors()
	if len(ctors) == 0 {
		ctor := &classfile.Method{
			Name:       classfile.ConstructorName,
			Descriptor: classfile.NoArgDescriptor,
			Modifiers:  classfile.Public | classfile.Synthetic,
		}
		if err := m.AddMethod(ctor); err != nil {
			return err
		}
		ctors = []*classfile.Method{ctor}
	}
	for _, ctor := range ctors {
		ctor.PrependProbe(classfile.NewProbe(classfile.ProbeLeakTrack, field))
	}

	finalizer, err := finalizeMethod(m)
	if err != nil {
		return err
	}
	check := append([]string{field}, finalizeExempt[m.Name]...)
	finalizer.PrependProbe(classfile.NewProbe(classfile.ProbeLeakCheck, check...))
	finalizer.AppendEpilogue(classfile.NewProbe(classfile.ProbeLeakRelease, field))
	return nil
}

// qualifies applies the type-level checks.
func (t *LeakTransformer) qualifies(rc *resolve.Context, m *classfile.Module) bool {
	if m.IsInterface() || IsCoreModule(m.Name) {
		return false
	}
	return rc.ImplementsUnless(m, t.spec.Capability, isLeakDenied)
}

func isLeakDenied(name string) bool {
	return hasAnyPrefix(name, LeakDenyPrefixes)
}

// releaseMethods returns the concrete no-argument release methods declared by m.
func (t *LeakTransformer) releaseMethods(m *classfile.Module) []*classfile.Method {
	var out []*classfile.Method
	for _, meth := range m.MethodsNamed(t.spec.ReleaseMethod) {
		if meth.Descriptor == classfile.NoArgDescriptor && meth.IsConcrete() {
			out = append(out, meth)
		}
	}
	return out
}

// finalizeMethod returns the instance finalization hook, synthesizing one
// when the module does not declare it.
func finalizeMethod(m *classfile.Module) (*classfile.Method, error) {
	for _, meth := range m.MethodsNamed(classfile.FinalizeName) {
		if meth.Descriptor == classfile.NoArgDescriptor && !meth.Modifiers.Has(classfile.Static) {
			if meth.Modifiers.Has(classfile.Abstract) || meth.Modifiers.Has(classfile.Native) {
				return nil, fmt.Errorf("module %s declares a %s finalize method", m.Name, meth.Modifiers)
			}
			return meth, nil
		}
	}

	finalizer := &classfile.Method{
		Name:       classfile.FinalizeName,
		Descriptor: classfile.NoArgDescriptor,
		Modifiers:  classfile.Protected | classfile.Synthetic,
	}
	if err := m.AddMethod(finalizer); err != nil {
		return nil, err
	}
	return finalizer, nil
}
