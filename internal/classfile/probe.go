package classfile

import (
	"slices"
	"strings"
)

// ProbeOp identifies the runtime check a probe performs.
// The numeric values are part of the wire format.
type ProbeOp uint8

const (
	// ProbeLeakTrack stores a freshly captured context into the field named by Args[0].
	ProbeLeakTrack ProbeOp = iota + 1

	// ProbeLeakRelease clears the context field named by Args[0].
	ProbeLeakRelease

	// ProbeLeakReleaseOnce clears the context field named by Args[0] under the
	// instance lock and reports a double release if the instance was already
	// released through the same field.
	ProbeLeakReleaseOnce

	// ProbeLeakCheck reports a leak if the context field named by Args[0] is
	// still set. Any further arguments name exempt types: the check is
	// skipped when the instance is one of them or a subtype.
	ProbeLeakCheck

	// ProbeRecordOwner records the current goroutine as the owning thread.
	ProbeRecordOwner

	// ProbeCheckOwner reports a violation if the current goroutine is not the
	// owning thread. Args[0] names the call site.
	ProbeCheckOwner

	// ProbeSnapshot stores the string form of static field Args[0] into the
	// static shadow field Args[1].
	ProbeSnapshot

	probeOpLimit
)

var probeOpNames = map[ProbeOp]string{
	ProbeLeakTrack:       "leak.track",
	ProbeLeakRelease:     "leak.release",
	ProbeLeakReleaseOnce: "leak.release-once",
	ProbeLeakCheck:       "leak.check",
	ProbeRecordOwner:     "owner.record",
	ProbeCheckOwner:      "owner.check",
	ProbeSnapshot:        "drift.snapshot",
}

// probeArity is the number of arguments each op requires. Variadic ops
// take at least that many.
var probeArity = map[ProbeOp]int{
	ProbeLeakTrack:       1,
	ProbeLeakRelease:     1,
	ProbeLeakReleaseOnce: 1,
	ProbeLeakCheck:       1,
	ProbeRecordOwner:     0,
	ProbeCheckOwner:      1,
	ProbeSnapshot:        2,
}

var probeVariadic = map[ProbeOp]bool{
	ProbeLeakCheck: true,
}

// Valid reports whether op is a known probe op.
func (op ProbeOp) Valid() bool {
	return op > 0 && op < probeOpLimit
}

// String returns the mnemonic of the op.
func (op ProbeOp) String() string {
	if name, ok := probeOpNames[op]; ok {
		return name
	}
	return "unknown"
}

// Probe is a single injected runtime check.
type Probe struct {
	Op   ProbeOp
	Args []string
}

// NewProbe builds a probe from an op and its arguments.
func NewProbe(op ProbeOp, args ...string) Probe {
	return Probe{Op: op, Args: args}
}

// Arg returns the i-th argument, or "" if absent.
func (p Probe) Arg(i int) string {
	if i < 0 || i >= len(p.Args) {
		return ""
	}
	return p.Args[i]
}

// Equal reports whether two probes have the same op and arguments.
func (p Probe) Equal(other Probe) bool {
	return p.Op == other.Op && slices.Equal(p.Args, other.Args)
}

// String renders the probe as "op(arg, arg)".
func (p Probe) String() string {
	return p.Op.String() + "(" + strings.Join(p.Args, ", ") + ")"
}

// validate checks the op and its arity.
func (p Probe) validate() bool {
	if !p.Op.Valid() {
		return false
	}
	if probeVariadic[p.Op] {
		return len(p.Args) >= probeArity[p.Op]
	}
	return len(p.Args) == probeArity[p.Op]
}
