package ingest

import "errors"

// Domain-specific errors for ingest operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidMessage is returned for payloads that cannot become archive values.
	ErrInvalidMessage = errors.New("ingest: invalid message")

	// ErrStopped is returned when a message arrives after Stop.
	ErrStopped = errors.New("ingest: service stopped")
)
