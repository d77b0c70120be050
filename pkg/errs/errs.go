// Package errs defines the typed error taxonomy used across the table
// engine: invalid input, schema, validation, storage, not-found, version
// conflicts and aborts. Callers are expected to use errors.As to recover
// the concrete type rather than matching on message text.
package errs

import (
	"errors"
	"fmt"
)

// InvalidInputError signals a request the caller must fix before retrying;
// it is never retried by pkg/retry.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return "invalid input: " + e.Reason }

func NewInvalidInput(reason string) error {
	return &InvalidInputError{Reason: reason}
}

// SchemaError signals an intra-write type disagreement or an incompatible
// schema evolution across writes.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return "schema error: " + e.Reason
	}
	return fmt.Sprintf("schema error on column %q: %s", e.Column, e.Reason)
}

// NewSchemaError reports a type disagreement on column, either within one
// write's records or between a write and the table's existing schema.
func NewSchemaError(column, reason string) error {
	return &SchemaError{Column: column, Reason: reason}
}

// ValidationError carries the full list of invariant violations found while
// validating an action, so all problems surface together.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation error: " + e.Issues[0]
	}
	return fmt.Sprintf("validation error: %d issues: %v", len(e.Issues), e.Issues)
}

func NewValidation(issues ...string) error {
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// StorageError wraps a failure from the StorageBackend, carrying the
// offending path and the operation that was attempted.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorage(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}

// NotFoundError signals that read() addressed a missing object. Used
// internally to detect a not-yet-created table.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Path }

func NewNotFound(path string) error { return &NotFoundError{Path: path} }

// VersionMismatchError signals that writeConditional's expected-version
// precondition did not hold. The concurrency controller converts this into
// a ConcurrencyError before it reaches the caller.
type VersionMismatchError struct {
	Path     string
	Expected string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch writing %s (expected %s)", e.Path, e.Expected)
}

// ConcurrencyError signals that another writer won the race to publish the
// next version. It is retryable by default in pkg/retry.
type ConcurrencyError struct {
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"concurrent write conflict: expected version %d but table is at version %d; refresh and retry",
		e.ExpectedVersion, e.ActualVersion,
	)
}

// Retryable marks ConcurrencyError as retryable for pkg/retry's default
// classification (duck-typed via the Retryable() bool method below).
func (e *ConcurrencyError) Retryable() bool { return true }

func NewConcurrency(expected, actual int64) error {
	return &ConcurrencyError{ExpectedVersion: expected, ActualVersion: actual}
}

// AbortError signals that an operation was cancelled via context or an
// explicit abort signal.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	if e.Reason == "" {
		return "aborted"
	}
	return "aborted: " + e.Reason
}

func NewAbort(reason string) error { return &AbortError{Reason: reason} }

// CorruptionError signals an unparseable commit or checkpoint file. The
// snapshot builder's default (tolerant) mode logs and continues past these;
// strict mode surfaces them to the caller.
type CorruptionError struct {
	Path string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt log entry %s: %v", e.Path, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func NewCorruption(path string, err error) error {
	return &CorruptionError{Path: path, Err: err}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConcurrency reports whether err is, or wraps, a ConcurrencyError.
func IsConcurrency(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// IsVersionMismatch reports whether err is, or wraps, a VersionMismatchError.
func IsVersionMismatch(err error) bool {
	var vm *VersionMismatchError
	return errors.As(err, &vm)
}
