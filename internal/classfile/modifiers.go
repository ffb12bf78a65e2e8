package classfile

import "strings"

// Modifiers is the bit set of access and property flags carried by modules,
// fields and methods.
type Modifiers uint16

// Modifier bits. The values are part of the wire format.
const (
	Public    Modifiers = 0x0001
	Private   Modifiers = 0x0002
	Protected Modifiers = 0x0004
	Static    Modifiers = 0x0008
	Final     Modifiers = 0x0010
	Transient Modifiers = 0x0080
	Native    Modifiers = 0x0100
	Interface Modifiers = 0x0200
	Abstract  Modifiers = 0x0400
	Synthetic Modifiers = 0x1000
)

var modifierNames = []struct {
	bit  Modifiers
	name string
}{
	{Public, "public"},
	{Private, "private"},
	{Protected, "protected"},
	{Static, "static"},
	{Final, "final"},
	{Transient, "transient"},
	{Native, "native"},
	{Interface, "interface"},
	{Abstract, "abstract"},
	{Synthetic, "synthetic"},
}

// Has reports whether every bit of flag is set.
func (m Modifiers) Has(flag Modifiers) bool {
	return m&flag == flag
}

// String returns the space separated modifier keywords, in declaration order.
func (m Modifiers) String() string {
	var parts []string
	for _, mn := range modifierNames {
		if m.Has(mn.bit) {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, " ")
}
