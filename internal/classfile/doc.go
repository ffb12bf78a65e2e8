// Package classfile implements the structural model of a module and its
// binary encoding.
//
// A module is a class-like compiled unit: a fully qualified name, an
// optional superclass, an ordered set of implemented interfaces, and ordered
// sequences of fields and methods. Methods carry an opaque body plus two
// injection points (prologue and epilogue) that hold probes. Probes are the
// only executable content this package understands; everything else in a
// method body is carried through untouched.
//
// The model is an arena: fields and methods are owned by their Module and
// addressed by index or name, never shared between modules. Mutation is
// additive only:
//
//	m.AddField(f)        // append a field, name must be unused
//	m.AddMethod(meth)    // append a synthesized method
//	meth.PrependProbe(p) // inject at the head of the prologue
//	meth.AppendEpilogue(p)
//	m.AddInterface(name) // append a capability
//
// Existing fields and methods are never removed or renamed.
//
// Wire Format:
//
// Decode and Encode translate between the model and a big-endian,
// length-prefixed byte layout (see SPEC_FULL.md, "Wire format"). Encoding a
// freshly decoded canonical module reproduces the input byte for byte.
//
// Thread Safety: A Module is owned by a single load event and is NOT safe
// for concurrent mutation.
package classfile
