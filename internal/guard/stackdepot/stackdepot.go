// Package stackdepot stores captured call stacks, deduplicated by hash.
//
// Every instrumented resource records where it was created so that a leak
// report can point at the allocation site. Most instances of a type are
// created from a handful of call sites, so stacks are stored once and
// referenced by a 64-bit hash.
//
// Design:
//   - Fixed-size stack traces (16 frames)
//   - Hash-based deduplication (xxhash over the program counters)
//   - Global sync.Map storage (thread-safe)
//
// Usage:
//
//	hash := stackdepot.Capture(1)
//	...
//	fmt.Print(stackdepot.Get(hash).FormatStack())
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// MaxFrames is the maximum number of stack frames to capture.
const MaxFrames = 16

// StackTrace is a captured call stack of fixed size.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// depot maps uint64 hash to *StackTrace.
var depot sync.Map

// Capture records the caller's stack and returns its hash.
//
// skip is the number of additional frames to skip above Capture's caller:
// Capture(0) starts at the function that called Capture.
//
// Returns 0 if no stack is available.
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
func Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// Skip runtime.Callers and Capture itself.
	n := runtime.Callers(2+skip, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])
	if _, exists := depot.Load(hash); exists {
		return hash
	}
	depot.Store(hash, &StackTrace{PC: pcs})
	return hash
}

// Get retrieves a stack trace by hash, or nil if the hash is unknown.
func Get(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}
	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}
	return val.(*StackTrace)
}

// hashStack computes the xxhash of the program counters.
func hashStack(pcs []uintptr) uint64 {
	d := xxhash.New()
	var b [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(b[:], uint64(pc))
		_, _ = d.Write(b[:]) // Write never returns an error.
	}
	return d.Sum64()
}

// FormatStack formats the stack for diagnostic output:
//
//	main.worker()
//	    /path/to/file.go:45
//
// Runtime internal frames are filtered out.
func (st *StackTrace) FormatStack() string {
	if st == nil {
		return "  <unknown>\n"
	}

	frames := runtime.CallersFrames(st.PC[:])

	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <runtime internal>\n"
	}
	return buf.String()
}

// Reset clears the depot. Only for single-threaded test setup.
func Reset() {
	depot = sync.Map{}
}

// Len returns the number of unique stacks stored.
//
// Performance: O(N), do not call on a hot path.
func Len() int {
	n := 0
	depot.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
