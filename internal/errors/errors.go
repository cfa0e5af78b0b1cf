// Package errors defines the stable error taxonomy shared by the
// comparison engine, the tensor statistics engine, and the parsers.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// StatsMisaligned indicates a tensor buffer whose length does not match
	// element count times dtype width
	StatsMisaligned ErrorCode = "STATS_MISALIGNED"
	// StatsUnsupportedDtype indicates a dtype tag the statistics engine
	// does not recognize
	StatsUnsupportedDtype ErrorCode = "STATS_UNSUPPORTED_DTYPE"
	// ParseFailed indicates an input file could not be decoded
	ParseFailed ErrorCode = "PARSE_FAILED"
	// FormatUnknown indicates the input format could not be detected
	FormatUnknown ErrorCode = "FORMAT_UNKNOWN"
	// FormatMismatch indicates the two inputs have different formats
	FormatMismatch ErrorCode = "FORMAT_MISMATCH"
	// InvalidTree indicates a structurally malformed value tree
	// (negative dimension, duplicate object key, count/shape mismatch)
	InvalidTree ErrorCode = "INVALID_TREE"
	// IncompatibleOptions indicates option values that cannot apply to the
	// inputs (non-fatal; the engine records a warning and degrades)
	IncompatibleOptions ErrorCode = "INCOMPATIBLE_OPTIONS"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// DiffaiError represents a diffai error with code, message, and optional details
type DiffaiError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new DiffaiError
func New(code ErrorCode, message string, cause error) *DiffaiError {
	return &DiffaiError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new DiffaiError with a formatted message and no cause
func Newf(code ErrorCode, format string, args ...interface{}) *DiffaiError {
	return &DiffaiError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *DiffaiError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DiffaiError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *DiffaiError) WithDetails(details interface{}) *DiffaiError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from err, unwrapping as needed.
// Returns InternalError if no DiffaiError is found in the chain.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if de, ok := err.(*DiffaiError); ok {
			return de.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return InternalError
}
