// Package backuperrors defines the structured error kinds shared by every
// component of the backup engine. Each kind keeps its underlying cause and
// exposes it through Unwrap, so callers recover it with the standard
// errors.Unwrap/errors.As (the kinds have no Cause method, so
// github.com/pkg/errors.Cause stops at them).
package backuperrors

import "github.com/pkg/errors"

// UsageError indicates invalid input from the caller: a missing path,
// overlapping roots, an unknown destination scheme, a pending-snapshot
// conflict. Fatal; no side effects have occurred when it is returned.
type UsageError struct {
	msg   string
	cause error
}

func NewUsageError(msg string) error {
	return &UsageError{msg: msg}
}

func WrapUsageError(cause error, msg string) error {
	return &UsageError{msg: msg, cause: cause}
}

func (e *UsageError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}

	return e.msg
}

func (e *UsageError) Unwrap() error { return e.cause }

// IoError wraps a read/write/rename/walk failure against a DataStore.
// Partial state left behind by the failing operation is reversible via
// Cleanup.
type IoError struct {
	msg   string
	cause error
}

func WrapIoError(cause error, msg string) error {
	return &IoError{msg: msg, cause: cause}
}

func (e *IoError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}

	return e.msg
}

func (e *IoError) Unwrap() error { return e.cause }

// IntegrityError indicates an index hash mismatch, a pool file hash
// mismatch, an unrecognized offsite directory name, or a missing/duplicate
// primary directory. Fatal; restore aborts before any local write commits.
type IntegrityError struct {
	msg   string
	cause error
}

func NewIntegrityError(msg string) error {
	return &IntegrityError{msg: msg}
}

func WrapIntegrityError(cause error, msg string) error {
	return &IntegrityError{msg: msg, cause: cause}
}

func (e *IntegrityError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}

	return e.msg
}

func (e *IntegrityError) Unwrap() error { return e.cause }

// CapacityError indicates the size precheck failed (required > 0.85 *
// available). Fatal; no mutation is performed before it is returned.
type CapacityError struct {
	msg string
}

func NewCapacityError(msg string) error {
	return &CapacityError{msg: msg}
}

func (e *CapacityError) Error() string { return e.msg }

// ExternalToolError indicates the archiver subprocess was missing or
// reported a non-zero result during creation, verification, or extraction.
// Fatal; the working directory is preserved for diagnosis.
type ExternalToolError struct {
	msg   string
	cause error
}

func WrapExternalToolError(cause error, msg string) error {
	return &ExternalToolError{msg: msg, cause: cause}
}

func (e *ExternalToolError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}

	return e.msg
}

func (e *ExternalToolError) Unwrap() error { return e.cause }

// Wrap is a re-export of errors.Wrap for packages that need generic
// causal wrapping without a specific error kind.
func Wrap(cause error, msg string) error {
	if cause == nil {
		return nil
	}

	return errors.Wrap(cause, msg)
}
