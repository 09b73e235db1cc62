// Package errors provides error handling for the lifecycle jobs.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Error marks for classifying failures across package boundaries
//
// Usage:
//
//	// Wrap with context
//	if err := store.Save(ctx, a); err != nil {
//	    return errors.Wrapf(err, "failed to save allocation %d", a.ID)
//	}
//
//	// Classify without changing the message
//	return errors.NewConfigurationError("Supplied prison %s is not rolled out.", code)
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Join         = crdb.Join
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails

	// Stack trace access for error reporting
	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// BuildSentryReport converts an error, with its stack and safe details, into a Sentry event.
var BuildSentryReport = crdb.BuildSentryReport

// GetStack is an alias for GetReportableStackTrace.
var GetStack = crdb.GetReportableStackTrace

// Mark attaches a sentinel to an error so errors.Is matches it, keeping the message.
var Mark = crdb.Mark

// Sentinel errors. Use errors.Is to test and errors.Mark to classify.
var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates malformed input (unknown job type, bad payload)
	ErrInvalidRequest = New("invalid request")

	// ErrConfiguration indicates the environment is not set up for the operation,
	// e.g. a prison that is not rolled out. Configuration errors are never retried.
	ErrConfiguration = New("configuration error")

	// ErrConflict indicates a uniqueness violation
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsConfigurationError checks if an error is marked as a configuration error
func IsConfigurationError(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewConfigurationError creates a configuration error whose message is exactly
// the formatted text.
func NewConfigurationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

// IsConflictError checks if an error is marked as a conflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConflict)
}
