package batch

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/obsarchive/internal/archive/codec"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// dataKey identifies a value within a station and datetime.
type dataKey struct {
	levtr int64
	code  variable.Varcode
}

func compareKeys(a, b dataKey) int {
	switch {
	case a.levtr < b.levtr:
		return -1
	case a.levtr > b.levtr:
		return 1
	case a.code < b.code:
		return -1
	case a.code > b.code:
		return 1
	default:
		return 0
	}
}

// pendingValue is a queued insert or update.
type pendingValue struct {
	key    dataKey
	id     int64
	update bool
	value  string
	attrs  []byte
}

// valueQueue collects pending values and the ids known to exist.
type valueQueue struct {
	ids     map[dataKey]int64
	pending []pendingValue
}

func newValueQueue() valueQueue {
	return valueQueue{ids: make(map[dataKey]int64)}
}

// add queues v under key according to policy.
func (q *valueQueue) add(b *Batch, key dataKey, v *variable.Var, policy Policy) error {
	if !v.IsSet() {
		return fmt.Errorf("%w: %s has no value", dberrors.ErrConsistency, v.Code())
	}

	p := pendingValue{key: key, value: v.Text()}
	if id, known := q.ids[key]; known {
		switch policy {
		case PolicyIgnore:
			return nil
		case PolicyError:
			return fmt.Errorf("%w: %s", dberrors.ErrDuplicate, v.Code())
		}
		p.id = id
		p.update = true
	}

	if b.opts.WithAttributes {
		blob, err := codec.EncodeAttrs(v)
		if err != nil {
			return err
		}
		p.attrs = blob
	}

	q.pending = append(q.pending, p)
	return nil
}

// take returns the pending values with duplicate keys collapsed to the
// last one added, split into inserts and updates, and clears the queue.
func (q *valueQueue) take() (inserts, updates []pendingValue) {
	pending := q.pending
	q.pending = nil

	slices.SortStableFunc(pending, func(a, b pendingValue) int { return compareKeys(a.key, b.key) })
	for i := range pending {
		if i+1 < len(pending) && compareKeys(pending[i].key, pending[i+1].key) == 0 {
			continue
		}
		if pending[i].update {
			updates = append(updates, pending[i])
		} else {
			inserts = append(inserts, pending[i])
		}
	}
	return inserts, updates
}

// valueTable describes how one table's rows are written.
type valueTable struct {
	// columns lists the inserted columns.
	columns []string
	// rowArgs returns the insert arguments of one value, in column order.
	rowArgs func(p *pendingValue) []any
	// returning lists the key columns read back after a multi-row insert.
	returning string
	// scanKey reads the id and key of a returned row.
	scanKey func(rows *sql.Rows) (int64, dataKey, error)
	// name is the table name.
	name string
}

func (t *valueTable) insertPrefix() string {
	return "INSERT INTO " + t.name + " (" + strings.Join(t.columns, ", ") + ") VALUES "
}

func (t *valueTable) rowPlaceholders() string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ") + ")"
}

// writeInserts inserts rows and records their new ids in q.
func (b *Batch) writeInserts(ctx context.Context, t *valueTable, q *valueQueue, rows []pendingValue) error {
	if len(rows) == 0 {
		return nil
	}

	prefix := t.insertPrefix()
	placeholders := t.rowPlaceholders()

	if !b.conn.Dialect().SupportsReturning() {
		for i := range rows {
			id, err := b.conn.InsertID(ctx, prefix+placeholders, t.rowArgs(&rows[i])...)
			if err != nil {
				return b.insertError(t, err)
			}
			q.ids[rows[i].key] = id
		}
		b.stats.Inserted += len(rows)
		return nil
	}

	for start := 0; start < len(rows); start += b.opts.ChunkSize {
		end := min(start+b.opts.ChunkSize, len(rows))
		chunk := rows[start:end]

		var sb strings.Builder
		args := make([]any, 0, len(chunk)*len(t.columns))
		sb.WriteString(prefix)
		for i := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholders)
			args = append(args, t.rowArgs(&chunk[i])...)
		}
		sb.WriteString(" RETURNING ")
		sb.WriteString(t.returning)

		n, err := b.insertChunk(ctx, t, q, sb.String(), args)
		if err != nil {
			return b.insertError(t, err)
		}
		if n != len(chunk) {
			return fmt.Errorf("%w: inserted %d rows into %s, expected %d",
				dberrors.ErrConsistency, n, t.name, len(chunk))
		}
		b.stats.Inserted += n
	}
	return nil
}

func (b *Batch) insertChunk(ctx context.Context, t *valueTable, q *valueQueue, stmt string, args []any) (int, error) {
	rows, err := b.conn.Query(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		id, key, err := t.scanKey(rows)
		if err != nil {
			return n, dberrors.Backend(stmt, err)
		}
		q.ids[key] = id
		n++
	}
	if err := rows.Err(); err != nil {
		return n, dberrors.Backend(stmt, err)
	}
	return n, nil
}

// insertError marks unique violations, which mean that a concurrent writer
// stored the same value, as dberrors.ErrDuplicate.
func (b *Batch) insertError(t *valueTable, err error) error {
	if b.conn.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s: %w", dberrors.ErrDuplicate, t.name, err)
	}
	return err
}

// writeUpdates runs one prepared UPDATE for every queued update.
func (b *Batch) writeUpdates(ctx context.Context, table string, rows []pendingValue) error {
	if len(rows) == 0 {
		return nil
	}

	query := "UPDATE " + table + " SET value = ? WHERE id = ?"
	if b.opts.WithAttributes {
		query = "UPDATE " + table + " SET value = ?, attrs = ? WHERE id = ?"
	}

	stmt, err := b.conn.Prepare(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // Statement cleanup

	for i := range rows {
		args := []any{rows[i].value, rows[i].id}
		if b.opts.WithAttributes {
			args = []any{rows[i].value, b.attrsArg(rows[i].attrs), rows[i].id}
		}
		if _, err := stmt.Exec(ctx, args...); err != nil {
			return err
		}
	}
	b.stats.Updated += len(rows)
	return nil
}

// StationData queues station metadata values of one station.
type StationData struct {
	station *Station
	queue   valueQueue
}

const selectStationDataIDs = `SELECT id, code FROM station_data WHERE id_station = ?`

func (sd *StationData) load(ctx context.Context) error {
	rows, err := sd.station.batch.conn.Query(ctx, selectStationDataIDs, sd.station.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var code int
		if err := rows.Scan(&id, &code); err != nil {
			return dberrors.Backend(selectStationDataIDs, err)
		}
		sd.queue.ids[dataKey{levtr: levtr.StationID, code: variable.Varcode(code)}] = id
	}
	if err := rows.Err(); err != nil {
		return dberrors.Backend(selectStationDataIDs, err)
	}
	return nil
}

// Add queues a station value.
func (sd *StationData) Add(v variable.Var, policy Policy) error {
	return sd.queue.add(sd.station.batch, dataKey{levtr: levtr.StationID, code: v.Code()}, &v, policy)
}

// ID returns the row id of a stored station value.
func (sd *StationData) ID(code variable.Varcode) (int64, bool) {
	id, ok := sd.queue.ids[dataKey{levtr: levtr.StationID, code: code}]
	return id, ok
}

func (sd *StationData) flush(ctx context.Context) error {
	b := sd.station.batch
	inserts, updates := sd.queue.take()

	stationID := sd.station.ID
	t := &valueTable{
		name:    "station_data",
		columns: []string{"id_station", "code", "value", "attrs"},
		rowArgs: func(p *pendingValue) []any {
			return []any{stationID, int(p.key.code), p.value, b.attrsArg(p.attrs)}
		},
		returning: "id, code",
		scanKey: func(rows *sql.Rows) (int64, dataKey, error) {
			var id int64
			var code int
			err := rows.Scan(&id, &code)
			return id, dataKey{levtr: levtr.StationID, code: variable.Varcode(code)}, err
		},
	}

	if err := b.writeInserts(ctx, t, &sd.queue, inserts); err != nil {
		return err
	}
	return b.writeUpdates(ctx, "station_data", updates)
}
