package classfile

import (
	"fmt"
	"slices"
)

// Special method names.
const (
	// ConstructorName is the name shared by all constructors of a module.
	ConstructorName = "<init>"

	// StaticInitName is the name of the static initializer.
	StaticInitName = "<clinit>"

	// FinalizeName is the name of the finalization hook, run when an
	// instance becomes unreachable.
	FinalizeName = "finalize"

	// NoArgDescriptor describes a method taking no arguments and returning nothing.
	NoArgDescriptor = "()V"
)

// primitiveTypes lists the declared type names that hold plain values.
var primitiveTypes = map[string]bool{
	"boolean": true,
	"byte":    true,
	"char":    true,
	"short":   true,
	"int":     true,
	"long":    true,
	"float":   true,
	"double":  true,
}

// IsPrimitive reports whether typ names a primitive value type.
func IsPrimitive(typ string) bool {
	return primitiveTypes[typ]
}

// Module is the mutable structural model of one decoded module.
type Module struct {
	// Version is the wire format version the module was decoded from.
	// Encode writes it back unchanged; an empty Version encodes as FormatVersion.
	Version string

	Name       string   // Fully qualified name, e.g. "com.badlogic.gdx.graphics.Color"
	Modifiers  Modifiers
	Super      string   // Superclass name, empty when absent
	Interfaces []string // Implemented interfaces in declaration order
	Fields     []*Field
	Methods    []*Method
}

// Field describes a single field.
type Field struct {
	Name      string
	Type      string
	Modifiers Modifiers

	// Initializer is an opaque initializer expression. It is only
	// meaningful when HasInitializer is set.
	Initializer    string
	HasInitializer bool
}

// IsStatic reports whether the field belongs to the module rather than an instance.
func (f *Field) IsStatic() bool {
	return f.Modifiers.Has(Static)
}

// Method describes a method, constructor or static initializer.
type Method struct {
	Name       string
	Descriptor string
	Modifiers  Modifiers

	// Tags are the fully qualified names of metadata annotations.
	Tags []string

	Prologue []Probe
	Body     []byte
	Epilogue []Probe
}

// IsConstructor reports whether the method is a constructor.
func (m *Method) IsConstructor() bool {
	return m.Name == ConstructorName
}

// IsConcrete reports whether the method has a body this system may inject into.
// Abstract, native and static methods are not concrete.
func (m *Method) IsConcrete() bool {
	return !m.Modifiers.Has(Abstract) && !m.Modifiers.Has(Native) && !m.Modifiers.Has(Static)
}

// PrependProbe injects p at the head of the prologue.
func (m *Method) PrependProbe(p Probe) {
	m.Prologue = append([]Probe{p}, m.Prologue...)
}

// AppendEpilogue injects p at the tail of the epilogue.
func (m *Method) AppendEpilogue(p Probe) {
	m.Epilogue = append(m.Epilogue, p)
}

// HasProbe reports whether the prologue or epilogue already holds p.
func (m *Method) HasProbe(p Probe) bool {
	for _, q := range m.Prologue {
		if q.Equal(p) {
			return true
		}
	}
	for _, q := range m.Epilogue {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

// HasTagSuffix reports whether any attached tag ends with suffix.
func (m *Method) HasTagSuffix(suffix string) bool {
	for _, tag := range m.Tags {
		if len(tag) >= len(suffix) && tag[len(tag)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

// IsInterface reports whether the module declares an interface.
func (m *Module) IsInterface() bool {
	return m.Modifiers.Has(Interface)
}

// HasInterface reports whether name is among the declared interfaces.
// Only direct declarations are considered; see resolve.Implements for the
// transitive walk.
func (m *Module) HasInterface(name string) bool {
	return slices.Contains(m.Interfaces, name)
}

// AddInterface appends name to the declared interfaces.
// Returns an error if the interface is already declared.
func (m *Module) AddInterface(name string) error {
	if m.HasInterface(name) {
		return fmt.Errorf("module %s already declares interface %s", m.Name, name)
	}
	m.Interfaces = append(m.Interfaces, name)
	return nil
}

// Field returns the field with the given name, or nil.
func (m *Module) Field(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddField appends f. Existing fields are never replaced.
func (m *Module) AddField(f *Field) error {
	if m.Field(f.Name) != nil {
		return fmt.Errorf("module %s already declares field %s", m.Name, f.Name)
	}
	m.Fields = append(m.Fields, f)
	return nil
}

// Method returns the first method with the given name, or nil.
func (m *Module) Method(name string) *Method {
	for _, meth := range m.Methods {
		if meth.Name == name {
			return meth
		}
	}
	return nil
}

// MethodsNamed returns every method with the given name (overloads included).
func (m *Module) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, meth := range m.Methods {
		if meth.Name == name {
			out = append(out, meth)
		}
	}
	return out
}

// Constructors returns every constructor in declaration order.
func (m *Module) Constructors() []*Method {
	return m.MethodsNamed(ConstructorName)
}

// StaticInit returns the static initializer, or nil.
func (m *Module) StaticInit() *Method {
	return m.Method(StaticInitName)
}

// AddMethod appends a synthesized method.
// A method with the same name and descriptor must not already exist.
func (m *Module) AddMethod(meth *Method) error {
	for _, existing := range m.Methods {
		if existing.Name == meth.Name && existing.Descriptor == meth.Descriptor {
			return fmt.Errorf("module %s already declares method %s%s", m.Name, meth.Name, meth.Descriptor)
		}
	}
	m.Methods = append(m.Methods, meth)
	return nil
}
