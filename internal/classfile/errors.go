package classfile

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("module decode failed")

	// ErrEncode matches every *EncodeError.
	ErrEncode = errors.New("module encode failed")
)

// DecodeError reports raw bytes that are not a valid module encoding.
//
// Fields:
//   - Offset: Byte offset at which decoding stopped
//   - Message: Human-readable error description
//   - Err: Underlying I/O error, if any
//
// Example output:
//
//	decode error at offset 4: unsupported format version "v2.0.0"
type DecodeError struct {
	Offset  int64
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	result := fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Message)
	if e.Err != nil {
		result += ": " + e.Err.Error()
	}
	return result
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecode) true for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// EncodeError reports a model state that has no valid encoding.
//
// An EncodeError always indicates a bug in whatever mutated the model: a
// decoded module re-encodes cleanly, so only a transformation can make it
// unencodable.
type EncodeError struct {
	Module  string // Name of the module being encoded
	Message string
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error in module %q: %s", e.Module, e.Message)
}

// Is makes errors.Is(err, ErrEncode) true for every EncodeError.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncode
}
