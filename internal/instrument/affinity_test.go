package instrument

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/modguard/internal/classfile"
)

// TestAffinityRuleTable pins every method name of the per-type rule table.
func TestAffinityRuleTable(t *testing.T) {
	tests := []struct {
		module  string
		methods []string
	}{
		{label, []string{
			"setStyle", "setText", "computePrefSize", "layout", "draw", "getPrefWidth",
			"getPrefHeight", "setWrap", "setAlignment", "setFontScale", "setFontScaleX", "setFontScaleY",
		}},
		{textField, []string{
			"letterUnderCursor", "wordUnderCursor", "setStyle", "calculateOffsets", "draw", "getTextY",
			"drawSelection", "drawText", "drawMessageText", "drawCursor", "updateDisplayText", "copy",
			"cut", "paste", "insert", "delete", "next", "findNextTextField",
			"setTextFieldListener", "setTextFieldFilter", "setFocusTraversal", "setMessageText", "appendText", "setText",
			"changeText", "getSelection", "setSelection", "selectAll", "clearSelection", "setCursorPosition",
			"setOnscreenKeyboard", "setClipboard", "getPrefHeight", "setAlignment", "setPasswordMode", "setPasswordCharacter",
			"moveCursor", "continueCursor",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			rule, ok := affinityRules[tt.module]
			require.True(t, ok)
			assert.True(t, rule.constructors)
			assert.Len(t, rule.methods, len(tt.methods))

			m := &classfile.Module{Name: tt.module, Methods: []*classfile.Method{ctor(), method("getText"), method("act")}}
			for _, name := range tt.methods {
				m.Methods = append(m.Methods, method(name))
			}

			changed, err := transform(t, NewAffinityTransformer(), newNamespace(t), m)
			require.NoError(t, err)
			require.True(t, changed)

			for _, name := range tt.methods {
				assert.Equal(t, []classfile.Probe{classfile.NewProbe(classfile.ProbeCheckOwner, tt.module+"."+name)},
					m.Method(name).Prologue, name)
			}
			assert.Equal(t, classfile.NewProbe(classfile.ProbeCheckOwner, tt.module+".<init>"), m.Constructors()[0].Prologue[0])
			assert.Empty(t, m.Method("getText").Prologue)
			assert.Empty(t, m.Method("act").Prologue)
			assert.True(t, m.HasInterface(AffinityMarker))
		})
	}
	assert.Len(t, affinityRules, len(tests))
}

// TestAffinitySkipsBodiless tests that abstract and native methods are never
// selected, even when listed.
func TestAffinitySkipsBodiless(t *testing.T) {
	m := &classfile.Module{
		Name: label,
		Methods: []*classfile.Method{
			ctor(),
			{Name: "layout", Descriptor: classfile.NoArgDescriptor, Modifiers: classfile.Public | classfile.Native},
			{Name: "draw", Descriptor: "(Lcom/badlogic/gdx/graphics/g2d/Batch;F)V", Modifiers: classfile.Public | classfile.Abstract},
			{Name: "setText", Descriptor: "(Ljava/lang/CharSequence;)V", Modifiers: classfile.Public},
		},
	}

	changed, err := transform(t, NewAffinityTransformer(), newNamespace(t), m)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Empty(t, m.Method("layout").Prologue)
	assert.Empty(t, m.Method("draw").Prologue)
	assert.Len(t, m.Method("setText").Prologue, 1, "every overload of a listed name is checked")
}

// TestAffinityTagOptIn tests selection by tag suffix on arbitrary types.
func TestAffinityTagOptIn(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"com.example.annotations.RequireGLThread", true},
		{"gdxdbg.RequireGLThread", true},
		{"com.example.NotRequireGLThread", false},
		{"RequireGLThread", false},
		{"com.example.RequireGLThreadLater", false},
		{"com.example.Pure", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			tagged := method("refresh")
			tagged.Tags = []string{tt.tag}
			m := &classfile.Module{Name: "com.example.Panel", Methods: []*classfile.Method{ctor(), tagged}}

			changed, err := transform(t, NewAffinityTransformer(), newNamespace(t), m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
			if tt.want {
				assert.Equal(t, []classfile.ProbeOp{classfile.ProbeCheckOwner}, probeOps(tagged.Prologue))
			} else {
				assert.Empty(t, tagged.Prologue)
			}
			assert.Empty(t, m.Constructors()[0].Prologue, "untagged constructors of unlisted types are left alone")
		})
	}
}

// TestAffinityOwner tests that direct implementors of the owner capability
// record ownership and nothing else.
func TestAffinityOwner(t *testing.T) {
	tagged := method("setTitle")
	tagged.Tags = []string{"com.example.RequireGLThread"}
	m := &classfile.Module{
		Name:       "com.badlogic.gdx.backends.lwjgl3.Lwjgl3Graphics",
		Interfaces: []string{OwnerCapability},
		Methods:    []*classfile.Method{ctor(), {Name: classfile.ConstructorName, Descriptor: "(I)V"}, method("update"), tagged},
	}

	changed, err := transform(t, NewAffinityTransformer(), newNamespace(t), m)
	require.NoError(t, err)
	require.True(t, changed)

	for _, c := range m.Constructors() {
		assert.Equal(t, []classfile.Probe{classfile.NewProbe(classfile.ProbeRecordOwner)}, c.Prologue)
	}
	assert.Empty(t, m.Method("update").Prologue)
	assert.Empty(t, tagged.Prologue, "owners are not checked")
}

// TestAffinityInheritedOwner tests that inheriting the owner capability
// does not make a type an owner.
func TestAffinityInheritedOwner(t *testing.T) {
	ns := newNamespace(t, &classfile.Module{Name: "com.example.BaseGraphics", Interfaces: []string{OwnerCapability}})
	m := &classfile.Module{Name: "com.example.MyGraphics", Super: "com.example.BaseGraphics", Methods: []*classfile.Method{ctor()}}

	changed, err := transform(t, NewAffinityTransformer(), ns, m)
	require.NoError(t, err)
	assert.False(t, changed)

	iface := &classfile.Module{Name: "com.example.Graphics2", Modifiers: classfile.Interface, Interfaces: []string{OwnerCapability}}
	assert.Empty(t, NewAffinityTransformer().Select(iface))
}

// TestAffinityNoMatch tests that modules without selections are untouched.
func TestAffinityNoMatch(t *testing.T) {
	m := &classfile.Module{Name: "com.example.Model", Methods: []*classfile.Method{ctor(), method("update")}}

	changed, err := transform(t, NewAffinityTransformer(), newNamespace(t), m)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, m.Interfaces)
}

// TestAffinityDuplicate tests that re-running the transformer is fatal.
func TestAffinityDuplicate(t *testing.T) {
	m := &classfile.Module{Name: label, Methods: []*classfile.Method{ctor(), method("layout")}}
	tr := NewAffinityTransformer()

	_, err := transform(t, tr, newNamespace(t), m)
	require.NoError(t, err)

	_, err = transform(t, tr, newNamespace(t), m)
	assert.True(t, errors.Is(err, ErrDuplicateMarker))
	assert.Len(t, m.Method("layout").Prologue, 1)
}

// TestAffinitySelectIsPure tests that pass 1 does not mutate.
func TestAffinitySelectIsPure(t *testing.T) {
	m := &classfile.Module{Name: textField, Methods: []*classfile.Method{ctor(), method("paste"), method("cut")}}

	points := NewAffinityTransformer().Select(m)
	assert.Len(t, points, 3)
	for _, meth := range m.Methods {
		assert.Empty(t, meth.Prologue)
	}
	assert.Empty(t, m.Interfaces)
}

func TestAffinityRequires(t *testing.T) {
	tr := NewAffinityTransformer()
	assert.True(t, tr.Requires(label))
	assert.True(t, tr.Requires(textField))
	assert.False(t, tr.Requires(OwnerCapability))
	assert.False(t, tr.Requires("com.badlogic.gdx.graphics.Color"))
	assert.False(t, tr.Requires("com.example.Panel"))
}
