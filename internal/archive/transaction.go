package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/best"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// StationValues are metadata values of one station.
type StationValues struct {
	Report string
	Coords batch.Coords
	// Ident is empty for fixed stations.
	Ident  string
	Values []variable.Var
}

// MeasuredValues are values observed by one station at one datetime, level
// and time range.
type MeasuredValues struct {
	Report   string
	Coords   batch.Coords
	Ident    string
	Datetime time.Time
	Level    levtr.Level
	Trange   levtr.Trange
	Values   []variable.Var
}

// InsertOptions control how inserted values meet existing ones.
type InsertOptions struct {
	// Policy applies when a value with the same key is already stored.
	Policy batch.Policy

	// CanAddStations allows creating stations and reports that do not exist
	// yet. Without it, inserting for an unknown station is
	// dberrors.ErrNotFound.
	CanAddStations bool
}

// discarder is an open cursor.
type discarder interface {
	Discard()
}

// Transaction groups archive operations. Writes are queued and written at
// Flush or Commit; queries flush pending writes first so that they see them.
//
// A Transaction is not safe for concurrent use. After a write error it is
// aborted: every operation but Rollback returns ErrTransactionAborted.
type Transaction struct {
	a     *Archive
	tx    *sql.Tx
	conn  *backend.Conn
	batch *batch.Batch

	// levtr and reports hold the rows created by this transaction until it
	// commits.
	levtr   *levtr.Cache
	reports *txReports

	cursor     discarder
	aborted    error
	done       bool
	invalidate bool
}

// ready discards the open cursor and checks that the transaction accepts
// more work.
func (tx *Transaction) ready() error {
	if tx.done {
		return ErrTransactionDone
	}
	if tx.cursor != nil {
		tx.cursor.Discard()
		tx.cursor = nil
	}
	if tx.aborted != nil {
		return fmt.Errorf("%w: %w", ErrTransactionAborted, tx.aborted)
	}
	return nil
}

// fail aborts the transaction and returns err.
func (tx *Transaction) fail(err error) error {
	if err != nil && tx.aborted == nil {
		tx.aborted = err
		tx.a.logger.Debug("transaction aborted", "error", err)
	}
	return err
}

// queryFail aborts the transaction unless err was raised before any
// statement ran.
func (tx *Transaction) queryFail(err error) error {
	if isQueryError(err) {
		return err
	}
	return tx.fail(err)
}

// Aborted reports whether a write failed.
func (tx *Transaction) Aborted() bool { return tx.aborted != nil }

// Stats returns the rows written so far.
func (tx *Transaction) Stats() batch.Stats { return tx.batch.Stats() }

// InsertStationData queues metadata values of a station.
func (tx *Transaction) InsertStationData(ctx context.Context, vals *StationValues, opts InsertOptions) error {
	if err := tx.ready(); err != nil {
		return err
	}
	st, err := tx.batch.GetStation(ctx, vals.Report, vals.Coords, vals.Ident, opts.CanAddStations)
	if err != nil {
		return tx.lookupFail(err)
	}
	sd, err := st.StationData(ctx)
	if err != nil {
		return tx.fail(err)
	}
	for _, v := range vals.Values {
		if err := sd.Add(v, opts.Policy); err != nil {
			return tx.fail(err)
		}
	}
	return nil
}

// InsertData queues measured values.
func (tx *Transaction) InsertData(ctx context.Context, vals *MeasuredValues, opts InsertOptions) error {
	if err := tx.ready(); err != nil {
		return err
	}
	if vals.Datetime.IsZero() {
		return fmt.Errorf("%w: measured values need a datetime", dberrors.ErrConsistency)
	}
	st, err := tx.batch.GetStation(ctx, vals.Report, vals.Coords, vals.Ident, opts.CanAddStations)
	if err != nil {
		return tx.lookupFail(err)
	}
	levtrID, err := tx.levtrID(ctx, vals.Level, vals.Trange)
	if err != nil {
		return tx.fail(err)
	}
	md, err := st.MeasuredData(ctx, vals.Datetime)
	if err != nil {
		return tx.fail(err)
	}
	for _, v := range vals.Values {
		if err := md.Add(levtrID, v, opts.Policy); err != nil {
			return tx.fail(err)
		}
	}
	return nil
}

// lookupFail aborts the transaction unless the station lookup only found
// nothing or rejected the coordinates, which leaves storage untouched.
func (tx *Transaction) lookupFail(err error) error {
	if (dberrors.IsNotFound(err) || dberrors.IsConsistency(err)) && !errors.Is(err, dberrors.ErrBackend) {
		return err
	}
	return tx.fail(err)
}

// levtrID interns a level and time range, creating missing rows in this
// transaction.
func (tx *Transaction) levtrID(ctx context.Context, level levtr.Level, trange levtr.Trange) (int64, error) {
	if !tx.invalidate {
		if id, ok := tx.a.levtr.Lookup(level, trange); ok {
			return id, nil
		}
	}
	return tx.levtr.ObtainID(ctx, tx.conn, level, trange)
}

// Flush writes every queued value.
func (tx *Transaction) Flush(ctx context.Context) error {
	if err := tx.ready(); err != nil {
		return err
	}
	return tx.flush(ctx)
}

func (tx *Transaction) flush(ctx context.Context) error {
	if err := tx.batch.Flush(ctx); err != nil {
		return tx.fail(fmt.Errorf("flushing: %w", err))
	}
	return nil
}

// Commit flushes queued values and commits.
func (tx *Transaction) Commit(ctx context.Context) error {
	if err := tx.ready(); err != nil {
		return err
	}
	if err := tx.flush(ctx); err != nil {
		return err
	}

	tx.done = true
	if err := tx.tx.Commit(); err != nil {
		return dberrors.Backend("COMMIT", err)
	}

	if tx.invalidate {
		tx.a.levtr.Invalidate()
	}
	tx.a.levtr.Merge(tx.levtr)
	tx.a.reports.merge(tx.reports.created)

	stats := tx.batch.Stats()
	tx.a.logger.Debug("transaction committed",
		"stations", stats.Stations,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
	)
	return nil
}

// Rollback discards the transaction. It returns nil on a transaction that
// is already finished, so it can be deferred.
func (tx *Transaction) Rollback() error {
	if tx.done {
		return nil
	}
	if tx.cursor != nil {
		tx.cursor.Discard()
		tx.cursor = nil
	}
	tx.done = true
	tx.batch.Clear()
	if err := tx.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return dberrors.Backend("ROLLBACK", err)
	}
	return nil
}

// QueryStations returns the stations matching q.
func (tx *Transaction) QueryStations(ctx context.Context, q *query.Query) (*Cursor[Station], error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return nil, err
	}
	c, err := tx.a.queryStations(ctx, tx.conn, tx.levtr, q)
	if err != nil {
		return nil, tx.queryFail(err)
	}
	tx.cursor = c
	return c, nil
}

// QueryStationData returns the station values matching q.
func (tx *Transaction) QueryStationData(ctx context.Context, q *query.Query) (*Cursor[StationDatum], error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return nil, err
	}
	c, err := tx.a.queryStationData(ctx, tx.conn, tx.levtr, q)
	if err != nil {
		return nil, tx.queryFail(err)
	}
	tx.cursor = c
	return c, nil
}

// QueryData returns the measured values matching q.
func (tx *Transaction) QueryData(ctx context.Context, q *query.Query) (*Cursor[Datum], error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return nil, err
	}
	c, err := tx.a.queryData(ctx, tx.conn, tx.levtr, tx.priorities(), q)
	if err != nil {
		return nil, tx.queryFail(err)
	}
	tx.cursor = c
	return c, nil
}

// QuerySummary returns per (station, level, time range, variable) counts.
func (tx *Transaction) QuerySummary(ctx context.Context, q *query.Query) (*Cursor[SummaryEntry], error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return nil, err
	}
	c, err := tx.a.querySummary(ctx, tx.conn, tx.levtr, q)
	if err != nil {
		return nil, tx.queryFail(err)
	}
	tx.cursor = c
	return c, nil
}

// priorities returns the shared report priorities plus those of the
// reports this transaction created.
func (tx *Transaction) priorities() best.Priorities {
	p := tx.a.Priorities()
	for memo, rep := range tx.reports.created {
		p[memo] = rep.Priority
	}
	return p
}

func (tx *Transaction) prepareQuery(ctx context.Context) error {
	if err := tx.ready(); err != nil {
		return err
	}
	return tx.flush(ctx)
}

// RemoveData deletes the measured values matching q and returns how many
// were deleted.
func (tx *Transaction) RemoveData(ctx context.Context, q *query.Query) (int64, error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return 0, err
	}

	var ids []int64
	var err error
	if q.Best || q.AttrFilter != "" {
		ids, err = tx.matchingIDs(ctx, q)
	} else {
		var stmt query.Statement
		if stmt, err = query.BuildDataIDs(q, tx.conn.Dialect()); err == nil {
			ids, err = tx.a.collectIDs(ctx, tx.conn, stmt)
		}
	}
	if err != nil {
		return 0, tx.queryFail(err)
	}

	n, err := deleteIDs(ctx, tx.conn, "data", ids)
	if err != nil {
		return n, tx.fail(err)
	}
	tx.batch.Clear()
	return n, nil
}

// matchingIDs returns the ids of the rows a data cursor yields.
func (tx *Transaction) matchingIDs(ctx context.Context, q *query.Query) ([]int64, error) {
	c, err := tx.a.queryData(ctx, tx.conn, tx.levtr, tx.priorities(), q)
	if err != nil {
		return nil, err
	}
	defer c.Discard()

	var ids []int64
	for c.Next() {
		ids = append(ids, c.Row().ID)
	}
	return ids, c.Err()
}

// RemoveStationData deletes the station values matching q and returns how
// many were deleted.
func (tx *Transaction) RemoveStationData(ctx context.Context, q *query.Query) (int64, error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return 0, err
	}

	var ids []int64
	var err error
	if q.AttrFilter != "" {
		var c *Cursor[StationDatum]
		if c, err = tx.a.queryStationData(ctx, tx.conn, tx.levtr, q); err == nil {
			for c.Next() {
				ids = append(ids, c.Row().ID)
			}
			err = c.Err()
			c.Discard()
		}
	} else {
		var stmt query.Statement
		if stmt, err = query.BuildStationDataIDs(q, tx.conn.Dialect()); err == nil {
			ids, err = tx.a.collectIDs(ctx, tx.conn, stmt)
		}
	}
	if err != nil {
		return 0, tx.queryFail(err)
	}

	n, err := deleteIDs(ctx, tx.conn, "station_data", ids)
	if err != nil {
		return n, tx.fail(err)
	}
	tx.batch.Clear()
	return n, nil
}

// RemoveAll deletes every station and value. Reports are kept.
func (tx *Transaction) RemoveAll(ctx context.Context) error {
	if err := tx.ready(); err != nil {
		return err
	}
	tx.batch.Clear()
	for _, table := range []string{"data", "station_data", "station", "levtr"} {
		if _, err := tx.conn.Exec(ctx, "DELETE FROM "+table); err != nil {
			return tx.fail(err)
		}
	}
	tx.dropLevtr()
	return nil
}

// Vacuum deletes stations without values and levtr rows no value uses.
func (tx *Transaction) Vacuum(ctx context.Context) (VacuumStats, error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return VacuumStats{}, err
	}
	stats, err := vacuum(ctx, tx.conn)
	if err != nil {
		return stats, tx.fail(err)
	}
	tx.batch.Clear()
	tx.dropLevtr()
	tx.a.logger.Info("archive vacuumed", "stations", stats.Stations, "levtr", stats.Levtr)
	return stats, nil
}

// dropLevtr forgets levtr ids that deleted rows may have held, here and,
// after commit, archive-wide.
func (tx *Transaction) dropLevtr() {
	tx.levtr.Invalidate()
	tx.invalidate = true
}

// AttrQuery returns the attributes of a stored value.
func (tx *Transaction) AttrQuery(ctx context.Context, kind ValueKind, id int64) ([]variable.Var, error) {
	if err := tx.prepareQuery(ctx); err != nil {
		return nil, err
	}
	attrs, err := attrQuery(ctx, tx.conn, tx.a.table, kind, id)
	if err != nil && !dberrors.IsNotFound(err) {
		return nil, tx.fail(err)
	}
	return attrs, err
}

// AttrInsert merges attributes into a stored value.
func (tx *Transaction) AttrInsert(ctx context.Context, kind ValueKind, id int64, attrs []variable.Var) error {
	if err := tx.prepareQuery(ctx); err != nil {
		return err
	}
	err := attrInsert(ctx, tx.conn, tx.a.table, kind, id, attrs)
	if err != nil && !dberrors.IsNotFound(err) {
		return tx.fail(err)
	}
	return err
}

// AttrRemove deletes attributes of a stored value; no codes removes all.
func (tx *Transaction) AttrRemove(ctx context.Context, kind ValueKind, id int64, codes ...variable.Varcode) error {
	if err := tx.prepareQuery(ctx); err != nil {
		return err
	}
	err := attrRemove(ctx, tx.conn, tx.a.table, kind, id, codes)
	if err != nil && !dberrors.IsNotFound(err) {
		return tx.fail(err)
	}
	return err
}
