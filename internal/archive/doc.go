// Package archive is the entry point of the observation archive.
//
// An Archive owns the database handle, the variable dictionary and the
// caches that outlive transactions (levtr ids and the report dictionary).
// Writes go through a Transaction, which batches station and measured
// values and writes them at Flush or Commit:
//
//	tx, err := arc.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() //nolint:errcheck // no-op after Commit
//
//	err = tx.InsertData(ctx, &archive.MeasuredValues{...}, archive.InsertOptions{
//	    Policy:         batch.PolicyUpdate,
//	    CanAddStations: true,
//	})
//	...
//	return tx.Commit(ctx)
//
// Queries return pull cursors. A transaction runs one statement at a time:
// starting another operation discards the previous cursor.
//
// The Archive methods of the same names run each operation in its own
// transaction (writes) or directly on the connection pool (reads).
package archive
