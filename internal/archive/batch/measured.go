package batch

import (
	"context"
	"database/sql"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/variable"
)

const selectDataIDs = `SELECT id, id_levtr, code FROM data WHERE id_station = ? AND datetime = ?`

// MeasuredData queues the values observed by one station at one datetime.
type MeasuredData struct {
	station  *Station
	datetime time.Time
	queue    valueQueue
}

// Datetime returns the observation time.
func (md *MeasuredData) Datetime() time.Time { return md.datetime }

func (md *MeasuredData) load(ctx context.Context) error {
	conn := md.station.batch.conn
	rows, err := conn.Query(ctx, selectDataIDs, md.station.ID, conn.TimeArg(md.datetime))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, levtrID int64
		var code int
		if err := rows.Scan(&id, &levtrID, &code); err != nil {
			return dberrors.Backend(selectDataIDs, err)
		}
		md.queue.ids[dataKey{levtr: levtrID, code: variable.Varcode(code)}] = id
	}
	if err := rows.Err(); err != nil {
		return dberrors.Backend(selectDataIDs, err)
	}
	return nil
}

// Add queues a measured value for a levtr id (see levtr.Cache.ObtainID).
func (md *MeasuredData) Add(levtrID int64, v variable.Var, policy Policy) error {
	return md.queue.add(md.station.batch, dataKey{levtr: levtrID, code: v.Code()}, &v, policy)
}

// ID returns the row id of a stored measured value.
func (md *MeasuredData) ID(levtrID int64, code variable.Varcode) (int64, bool) {
	id, ok := md.queue.ids[dataKey{levtr: levtrID, code: code}]
	return id, ok
}

func (md *MeasuredData) flush(ctx context.Context) error {
	b := md.station.batch
	inserts, updates := md.queue.take()

	stationID := md.station.ID
	datetime := b.conn.TimeArg(md.datetime)
	t := &valueTable{
		name:    "data",
		columns: []string{"id_station", "id_levtr", "datetime", "code", "value", "attrs"},
		rowArgs: func(p *pendingValue) []any {
			return []any{stationID, p.key.levtr, datetime, int(p.key.code), p.value, b.attrsArg(p.attrs)}
		},
		returning: "id, id_levtr, code",
		scanKey: func(rows *sql.Rows) (int64, dataKey, error) {
			var id, levtrID int64
			var code int
			err := rows.Scan(&id, &levtrID, &code)
			return id, dataKey{levtr: levtrID, code: variable.Varcode(code)}, err
		},
	}

	if err := b.writeInserts(ctx, t, &md.queue, inserts); err != nil {
		return err
	}
	return b.writeUpdates(ctx, "data", updates)
}
