// Package dberrors defines the error taxonomy shared by the archive packages.
//
// Every archive package reports failures through these sentinels so callers
// can classify an error with errors.Is regardless of which layer produced it:
//
//	if errors.Is(err, dberrors.ErrDuplicate) {
//	    // retry the insert with an update policy
//	}
//
// Storage failures are wrapped in a *BackendError that keeps the failing
// statement for diagnostics and still matches ErrBackend.
package dberrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a required station, levtr, report or value
	// lookup finds nothing.
	ErrNotFound = errors.New("archive: not found")

	// ErrConsistency is returned for requests that contradict the stored data
	// or contradict themselves (malformed predicate combinations).
	ErrConsistency = errors.New("archive: consistency error")

	// ErrDuplicate is returned when a value already exists and the caller
	// asked for an error on conflict. It matches ErrConsistency.
	ErrDuplicate = fmt.Errorf("%w: value already exists", ErrConsistency)

	// ErrTruncated is returned when the codec runs out of input mid-record.
	ErrTruncated = errors.New("archive: truncated data")

	// ErrUnimplemented is returned for features the active backend lacks.
	ErrUnimplemented = errors.New("archive: not implemented")

	// ErrBackend is matched by every storage-layer failure.
	ErrBackend = errors.New("archive: backend error")
)

// BackendError wraps a storage failure with the statement that caused it.
type BackendError struct {
	// Statement is the SQL text that failed (after dialect translation).
	Statement string

	// Err is the driver error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("archive: backend error: %v (statement: %s)", e.Err, e.Statement)
}

// Unwrap exposes both ErrBackend and the driver error to errors.Is/As.
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackend, e.Err}
}

// Backend wraps err as a *BackendError for stmt. A nil err returns nil.
func Backend(stmt string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Statement: stmt, Err: err}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConsistency reports whether err is a consistency error (duplicates included).
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}

// IsDuplicate reports whether err is a conflict raised under the error policy.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
