// Package batch accumulates the writes of one archive transaction and
// flushes them in bulk.
//
// A Batch caches every station it has seen, keyed by (report, coordinates,
// identifier). Looking a station up twice costs one storage query; a
// station created in the transaction is visible to later lookups before it
// is written. Each Station holds its StationData and one MeasuredData per
// datetime, which remember the ids of values already in storage so that Add
// can decide between insert and update without querying again.
//
// Writes are queued. Flush inserts new stations first, then writes the
// queued values as multi-row INSERT statements and the updates through one
// prepared UPDATE. When a key is added more than once before a flush, the
// last value wins.
//
// A Batch belongs to a single transaction and is not safe for concurrent use.
//
// # Conflict policies
//
// Add takes a Policy that decides what happens when the value already
// exists in storage:
//
//	PolicyError   fail with dberrors.ErrDuplicate
//	PolicyIgnore  keep the stored value
//	PolicyUpdate  overwrite the stored value
//
// A duplicate under PolicyError still aborts the transaction that owns the
// batch; callers may retry the whole transaction with PolicyUpdate.
package batch
