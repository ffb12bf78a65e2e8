package drift

import (
	"context"
	"fmt"
	"time"

	"github.com/kolkov/modguard/internal/guard/report"
)

// DefaultInterval is the pause between two comparison passes.
const DefaultInterval = 5 * time.Second

// Resolver reads the current value of a static field at runtime.
//
// ReadStatic returns a nil value when the field currently holds nothing
// and an error when the field cannot be read at all (module not loaded,
// field missing).
type Resolver interface {
	ReadStatic(module, field string) (any, error)
}

// Watchdog compares watched fields against their snapshots.
type Watchdog struct {
	Registry *Registry
	Resolver Resolver
	Sink     report.Sink

	// Interval between passes; DefaultInterval when zero.
	Interval time.Duration
}

// Run loops until ctx is done, comparing once per interval. The first pass
// runs one interval after Run is called.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick runs one comparison pass over every record, under the registry
// lock, and returns the number of drifts reported.
//
// A record is skipped for this pass when either field cannot be read or
// either value is nil. Failures are isolated per record.
func (w *Watchdog) Tick() int {
	drifted := 0
	w.Registry.each(func(r Record) {
		if w.compare(r) {
			drifted++
		}
	})
	return drifted
}

func (w *Watchdog) compare(r Record) (drifted bool) {
	defer func() {
		// A panicking resolver must not stop the remaining records.
		if recover() != nil {
			drifted = false
		}
	}()

	live, err := w.Resolver.ReadStatic(r.Module, r.Field)
	if err != nil || live == nil {
		return false
	}
	snapshot, err := w.Resolver.ReadStatic(r.Module, r.Shadow)
	if err != nil || snapshot == nil {
		return false
	}

	snapshotText := fmt.Sprint(snapshot)
	liveText := fmt.Sprint(live)
	if liveText == snapshotText {
		return false
	}

	if w.Sink != nil {
		w.Sink.Report(report.Diagnostic{
			Kind:    report.KindConstantDrift,
			Message: fmt.Sprintf("constant %s drifted: snapshot %q, live %q", r.Key(), snapshotText, liveText),
		})
	}
	return true
}
