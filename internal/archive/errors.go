package archive

import "errors"

// Domain errors for the archive package.
var (
	// ErrTransactionAborted is returned by every operation of a transaction
	// after a write failed. The transaction must be rolled back.
	ErrTransactionAborted = errors.New("archive: transaction aborted, roll back required")

	// ErrTransactionDone is returned by operations on a committed or
	// rolled back transaction.
	ErrTransactionDone = errors.New("archive: transaction already finished")

	// ErrClosed is returned by operations on a closed Archive.
	ErrClosed = errors.New("archive: closed")
)
