package archive

import (
	"context"
	"strings"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/query"
)

// deleteChunkSize is the number of ids per DELETE statement.
const deleteChunkSize = 500

const (
	vacuumLevtrSQL    = `DELETE FROM levtr WHERE id NOT IN (SELECT DISTINCT id_levtr FROM data)`
	vacuumStationsSQL = `DELETE FROM station
		WHERE id NOT IN (SELECT DISTINCT id_station FROM data)
		AND id NOT IN (SELECT DISTINCT id_station FROM station_data)`
)

// VacuumStats counts the rows deleted by Vacuum.
type VacuumStats struct {
	Stations int64
	Levtr    int64
}

// collectIDs runs an id statement and returns every id.
func (a *Archive) collectIDs(ctx context.Context, conn *backend.Conn, stmt query.Statement) ([]int64, error) {
	rows, err := a.run(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dberrors.Backend(stmt.SQL, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.Backend(stmt.SQL, err)
	}
	return ids, nil
}

// deleteIDs deletes rows by id in chunks. Ids are selected first because
// some engines cannot delete from a table they sub-select.
func deleteIDs(ctx context.Context, conn *backend.Conn, table string, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")
		res, err := conn.Exec(ctx, "DELETE FROM "+table+" WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(chunk))
		}
		total += n
	}
	return total, nil
}

func vacuum(ctx context.Context, conn *backend.Conn) (VacuumStats, error) {
	var stats VacuumStats

	res, err := conn.Exec(ctx, vacuumStationsSQL)
	if err != nil {
		return stats, err
	}
	stats.Stations, _ = res.RowsAffected()

	res, err = conn.Exec(ctx, vacuumLevtrSQL)
	if err != nil {
		return stats, err
	}
	stats.Levtr, _ = res.RowsAffected()
	return stats, nil
}
