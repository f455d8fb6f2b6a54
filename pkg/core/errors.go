package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies an error for propagation policy decisions:
// preconditions are never retried, interactability errors must not be
// downgraded to "not found", data errors come from parsing, timeouts
// terminate polling loops, transport errors come from the session.
type ErrorCategory int

// Error categories
const (
	ErrCategoryNone ErrorCategory = iota
	ErrCategoryPrecondition
	ErrCategoryInteractability
	ErrCategoryData
	ErrCategoryTimeout
	ErrCategoryTransport
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryPrecondition:
		return "precondition"
	case ErrCategoryInteractability:
		return "interactability"
	case ErrCategoryData:
		return "data"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryTransport:
		return "transport"
	default:
		return "none"
	}
}

// OpError is a structured error with a category and machine-readable code.
type OpError struct {
	Category ErrorCategory
	Code     string // Machine-readable code: session_not_initialized, not_interactable, ...
	Message  string // Human-readable message
	Cause    error  // Underlying error
}

// Error implements the error interface
func (e *OpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *OpError) Unwrap() error {
	return e.Cause
}

// Is matches two OpErrors by code, so sentinel copies produced by
// WithCause/WithMessage still satisfy errors.Is against the sentinel.
func (e *OpError) Is(target error) bool {
	var t *OpError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *OpError) WithCause(cause error) *OpError {
	return &OpError{Category: e.Category, Code: e.Code, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of the error with a custom message
func (e *OpError) WithMessage(format string, v ...interface{}) *OpError {
	return &OpError{Category: e.Category, Code: e.Code, Message: fmt.Sprintf(format, v...), Cause: e.Cause}
}

// Predefined errors
var (
	// Precondition errors: surfaced immediately, never retried.
	ErrInvalidArgument = &OpError{
		Category: ErrCategoryPrecondition,
		Code:     "invalid_argument",
		Message:  "invalid argument",
	}
	ErrDeviceUnknown = &OpError{
		Category: ErrCategoryPrecondition,
		Code:     "device_unknown",
		Message:  "device index not found in loaded configuration",
	}
	ErrSessionNotInitialized = &OpError{
		Category: ErrCategoryPrecondition,
		Code:     "session_not_initialized",
		Message:  "session not initialized, call Init first",
	}

	// ErrNotInteractable means the element was found but is not
	// visible/enabled for the requested operation. Never silently
	// downgraded to "not found".
	ErrNotInteractable = &OpError{
		Category: ErrCategoryInteractability,
		Code:     "not_interactable",
		Message:  "element found but not interactable",
	}

	// Data-integrity errors from parsing.
	ErrMalformedSnapshot = &OpError{
		Category: ErrCategoryData,
		Code:     "malformed_snapshot",
		Message:  "page source could not be parsed",
	}
	ErrMalformedMapping = &OpError{
		Category: ErrCategoryData,
		Code:     "malformed_mapping",
		Message:  "element mapping line is malformed",
	}
	ErrUnconstructable = &OpError{
		Category: ErrCategoryData,
		Code:     "expression_unconstructable",
		Message:  "no expression can be constructed for element",
	}

	// ErrTimeout terminates polling loops that fail hard on expiry
	// rather than return false (panel visibility checks).
	ErrTimeout = &OpError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "operation timed out",
	}

	// ErrTransport wraps session communication failures.
	ErrTransport = &OpError{
		Category: ErrCategoryTransport,
		Code:     "transport",
		Message:  "session transport failure",
	}
)
