// Package report defines the diagnostic sink shared by every injected
// runtime check and by the constant-drift watchdog.
//
// The sink is opaque to the checks that call it: a check builds a
// Diagnostic and hands it to Sink.Report exactly once per occurrence. Where
// the diagnostic ends up (structured log, terminal, metrics, a test
// collector) is decided by whoever constructs the runtime.
package report

import (
	"fmt"
	"strings"

	"github.com/kolkov/modguard/internal/guard/stackdepot"
)

// Kind classifies a diagnostic.
type Kind string

const (
	// KindLeak is an instance that became unreachable without being released.
	KindLeak Kind = "leak"
	// KindDoubleRelease is a second release of the same instance.
	KindDoubleRelease Kind = "double-release"
	// KindThreadAffinity is a thread-affine call from a non-owning goroutine.
	KindThreadAffinity Kind = "thread-affinity"
	// KindConstantDrift is a watched static field whose value drifted.
	KindConstantDrift Kind = "constant-drift"
)

// Context is a captured creation context: a message naming what was
// created plus the stack it was created on.
type Context struct {
	Message string
	Stack   uint64 // stackdepot hash, 0 if none
}

// NewContext captures the caller's stack. skip counts frames above the caller.
func NewContext(message string, skip int) *Context {
	return &Context{
		Message: message,
		Stack:   stackdepot.Capture(skip + 1),
	}
}

// FormatStack renders the captured stack.
func (c *Context) FormatStack() string {
	if c == nil {
		return "  <no context>\n"
	}
	return stackdepot.Get(c.Stack).FormatStack()
}

// Diagnostic is a single reported violation.
type Diagnostic struct {
	Kind    Kind
	Message string

	// Context is the captured creation context, nil when the check has none.
	Context *Context
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Context != nil {
		return fmt.Sprintf("[%s] %s (%s)", d.Kind, d.Message, d.Context.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// Format renders the diagnostic as a multi-line block:
//
//	==================
//	WARNING: MODGUARD leak
//	instance of com.example.Conn was never closed
//
//	Created at:
//	  main.open()
//	      /path/to/main.go:12
//	==================
func (d Diagnostic) Format() string {
	var buf strings.Builder
	buf.WriteString("==================\n")
	fmt.Fprintf(&buf, "WARNING: MODGUARD %s\n", d.Kind)
	buf.WriteString(d.Message)
	buf.WriteString("\n")
	if d.Context != nil {
		fmt.Fprintf(&buf, "\n%s at:\n", d.Context.Message)
		buf.WriteString(d.Context.FormatStack())
	}
	buf.WriteString("==================\n")
	return buf.String()
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(d Diagnostic)

// Report implements Sink.
func (f SinkFunc) Report(d Diagnostic) {
	f(d)
}

// Nop discards every diagnostic.
var Nop Sink = SinkFunc(func(Diagnostic) {})

// Multi fans a diagnostic out to every sink in order.
type Multi []Sink

// Report implements Sink.
func (m Multi) Report(d Diagnostic) {
	for _, s := range m {
		if s != nil {
			s.Report(d)
		}
	}
}
