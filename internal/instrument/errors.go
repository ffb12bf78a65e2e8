// Package instrument - Error types for instrumentation.
//
// This file defines the fatal errors raised by transformers. Errors name the
// module and transformer involved and carry a suggestion where one exists.
//
// Example output:
//
//	leak(close): module com.example.Conn already carries marker modguard.marker.CloseTracked
//
//	Suggestion: Make sure the transformer is registered only once per load event
package instrument

import (
	"errors"
	"fmt"
)

// ErrDuplicateMarker matches every *DuplicateMarkerError.
var ErrDuplicateMarker = errors.New("duplicate marker capability")

// DuplicateMarkerError reports that a transformer was about to mutate a
// module that already carries its marker capability.
//
// Fields:
//   - Transformer: Name of the transformer that detected the marker
//   - Module: Fully qualified module name
//   - Marker: The marker capability already present
//   - Suggestion: Optional hint for fixing the error
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type DuplicateMarkerError struct {
	Transformer string
	Module      string
	Marker      string
	Suggestion  string
}

// Error implements the error interface.
//
// Format: transformer: module M already carries marker K
//
// If Suggestion is non-empty, it's appended on a new line with "Suggestion: " prefix.
func (e *DuplicateMarkerError) Error() string {
	result := fmt.Sprintf("%s: module %s already carries marker %s", e.Transformer, e.Module, e.Marker)
	if e.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion)
	}
	return result
}

// Is makes errors.Is(err, ErrDuplicateMarker) true.
func (e *DuplicateMarkerError) Is(target error) bool {
	return target == ErrDuplicateMarker
}

// newDuplicateMarkerError builds the error with the standard suggestion.
func newDuplicateMarkerError(transformer, module, marker string) *DuplicateMarkerError {
	return &DuplicateMarkerError{
		Transformer: transformer,
		Module:      module,
		Marker:      marker,
		Suggestion:  "Make sure the transformer is registered only once and that already instrumented bytes are not fed back into the pipeline",
	}
}

// TransformError wraps a failure of one transformer on one module.
type TransformError struct {
	Transformer string
	Module      string
	Err         error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s with %s: %v", e.Module, e.Transformer, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransformError) Unwrap() error {
	return e.Err
}
