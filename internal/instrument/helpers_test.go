package instrument

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/modguard/internal/classfile"
	"github.com/kolkov/modguard/internal/resolve"
)

const (
	disposable = "com.badlogic.gdx.utils.Disposable"
	glTexture  = "com.badlogic.gdx.graphics.GLTexture"
	texture    = "com.badlogic.gdx.graphics.Texture"
	tiledMap   = "com.badlogic.gdx.maps.Map"
	label      = "com.badlogic.gdx.scenes.scene2d.ui.Label"
	textField  = "com.badlogic.gdx.scenes.scene2d.ui.TextField"
)

// newNamespace returns a namespace holding the platform ancestors used
// throughout these tests.
func newNamespace(t *testing.T, extra ...*classfile.Module) *resolve.MapNamespace {
	t.Helper()
	ns := resolve.NewMapNamespace()
	defineAll(t, ns,
		&classfile.Module{Name: "java.lang.AutoCloseable", Modifiers: classfile.Public | classfile.Interface},
		&classfile.Module{Name: "java.io.Closeable", Modifiers: classfile.Public | classfile.Interface, Interfaces: []string{"java.lang.AutoCloseable"}},
		&classfile.Module{Name: disposable, Modifiers: classfile.Public | classfile.Interface},
		&classfile.Module{Name: glTexture, Modifiers: classfile.Public, Interfaces: []string{disposable},
			Methods: []*classfile.Method{ctor(), method("dispose")}},
		&classfile.Module{Name: texture, Modifiers: classfile.Public, Super: glTexture,
			Methods: []*classfile.Method{ctor(), method("dispose")}},
		&classfile.Module{Name: tiledMap, Modifiers: classfile.Public, Interfaces: []string{disposable},
			Methods: []*classfile.Method{ctor(), method("dispose")}},
	)
	defineAll(t, ns, extra...)
	return ns
}

func defineAll(t *testing.T, ns *resolve.MapNamespace, modules ...*classfile.Module) {
	t.Helper()
	for _, m := range modules {
		raw, err := classfile.Encode(m)
		require.NoError(t, err)
		ns.Define(m.Name, raw)
	}
}

func ctor() *classfile.Method {
	return &classfile.Method{Name: classfile.ConstructorName, Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public, Body: []byte{0xb1}}
}

func method(name string) *classfile.Method {
	return &classfile.Method{Name: name, Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public, Body: []byte{0xb1}}
}

// transform runs t over m with a context bound to ns.
func transform(t *testing.T, tr Transformer, ns resolve.Namespace, m *classfile.Module) (bool, error) {
	t.Helper()
	rc := resolve.New(ns)
	rc.Bind(m)
	return tr.Transform(rc, m)
}

func probeOps(probes []classfile.Probe) []classfile.ProbeOp {
	ops := make([]classfile.ProbeOp, 0, len(probes))
	for _, p := range probes {
		ops = append(ops, p.Op)
	}
	return ops
}
