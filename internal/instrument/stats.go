// Package instrument - Pipeline statistics.
package instrument

import "sync/atomic"

// Stats tracks pipeline activity across load events.
//
// Use Case:
// The CLI prints a summary after a batch run:
//
//	modguard transform -v ./modules
//	  - 120 modules seen
//	  - 87 skipped (core)
//	  - 9 instrumented
//	  - 0 failed
//
// Thread Safety: Safe for concurrent use (atomic counters).
//
//nolint:revive // Stats is clear in context
type Stats struct {
	seen     atomic.Int64
	skipped  atomic.Int64
	mutated  atomic.Int64
	failed   atomic.Int64
	perStage []atomic.Int64 // Indexed by transformer position
}

func newStats(stages int) *Stats {
	return &Stats{perStage: make([]atomic.Int64, stages)}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Seen     int64 // Load events received
	Skipped  int64 // Core modules skipped without decoding
	Mutated  int64 // Modules returned with new bytes
	Failed   int64 // Load events aborted with an error
	PerStage []int64
}

// Unchanged returns the number of events that decoded but were left as is.
func (s StatsSnapshot) Unchanged() int64 {
	return s.Seen - s.Skipped - s.Mutated - s.Failed
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Seen:    s.seen.Load(),
		Skipped: s.skipped.Load(),
		Mutated: s.mutated.Load(),
		Failed:  s.failed.Load(),
	}
	for i := range s.perStage {
		snap.PerStage = append(snap.PerStage, s.perStage[i].Load())
	}
	return snap
}

func (s *Stats) stageMutated(i int) {
	if i >= 0 && i < len(s.perStage) {
		s.perStage[i].Add(1)
	}
}
