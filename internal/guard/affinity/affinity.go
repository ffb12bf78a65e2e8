// Package affinity holds the process-wide registration of the owning
// thread and the check injected in front of thread-affine operations.
//
// The owning-role type records the goroutine that constructs it; every
// injected check compares the calling goroutine against that record. The
// cell is last-writer-wins and read without locking: it feeds advisory
// diagnostics, not a correctness gate, so a racy read can at worst produce
// a spurious or missed warning.
package affinity

import (
	"fmt"
	"sync/atomic"

	"github.com/kolkov/modguard/internal/guard/goid"
	"github.com/kolkov/modguard/internal/guard/report"
)

// Cell is the ThreadAffinityRegistration: a single reference to the
// goroutine currently recognized as the owning thread.
//
// The zero value is an unset cell. Thread Safety: safe for concurrent use.
type Cell struct {
	owner atomic.Int64
	sink  report.Sink
}

// NewCell returns an unset cell reporting violations to sink.
func NewCell(sink report.Sink) *Cell {
	if sink == nil {
		sink = report.Nop
	}
	return &Cell{sink: sink}
}

// Record makes the calling goroutine the owning thread.
func (c *Cell) Record() {
	c.owner.Store(goid.Current())
}

// Owner returns the recorded goroutine ID and whether one is recorded.
func (c *Cell) Owner() (int64, bool) {
	id := c.owner.Load()
	return id, id != 0
}

// Reset clears the registration.
func (c *Cell) Reset() {
	c.owner.Store(0)
}

// Check reports a violation if the calling goroutine is not the owning
// thread, or if no owner is recorded. It never panics and never blocks the
// caller; the call proceeds either way.
//
// Returns true when the caller is the owning thread.
func (c *Cell) Check(site string) bool {
	owner, ok := c.Owner()
	if !ok {
		c.sink.Report(report.Diagnostic{
			Kind:    report.KindThreadAffinity,
			Message: fmt.Sprintf("%s called before an owning thread was registered", site),
			Context: report.NewContext("called", 1),
		})
		return false
	}

	current := goid.Current()
	if current == owner {
		return true
	}

	c.sink.Report(report.Diagnostic{
		Kind:    report.KindThreadAffinity,
		Message: fmt.Sprintf("%s called from goroutine %d, owning thread is goroutine %d", site, current, owner),
		Context: report.NewContext("called", 1),
	})
	return false
}
