package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/best"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// eventKey identifies one physical event across reports.
type eventKey struct {
	lat, lon int32
	ident    string
	datetime int64
	levtr    int64
	code     variable.Varcode
}

func datumEvent(d Datum) eventKey {
	return eventKey{
		lat:      d.Station.Coords.Lat,
		lon:      d.Station.Coords.Lon,
		ident:    d.Station.Ident,
		datetime: d.Datetime.Unix(),
		levtr:    d.LevtrID,
		code:     d.Var.Code(),
	}
}

// reportPriority ranks a value by the priority its report had when the
// query started. Reports missing from the snapshot rank lowest.
func reportPriority(prios best.Priorities) func(Datum) int {
	return func(d Datum) int { return prios.Of(d.Station.Report) }
}

// scanner returns a row decoder priming lc with the levtr rows it reads.
func (a *Archive) scanner(lc *levtr.Cache) *scanner {
	return &scanner{table: a.table, levtr: lc}
}

// run executes a built statement.
func (a *Archive) run(ctx context.Context, conn *backend.Conn, stmt query.Statement) (*sql.Rows, error) {
	a.logger.Debug("running query", "statement", stmt.Describe(conn.Dialect()))
	return conn.Query(ctx, stmt.SQL, stmt.Args...)
}

// limitAfter returns the limit the cursor has to enforce itself because
// rows are dropped after they leave the database.
func limitAfter(q *query.Query) int {
	if q.Best || q.AttrFilter != "" {
		return q.Limit
	}
	return 0
}

func (a *Archive) queryStations(ctx context.Context, conn *backend.Conn, lc *levtr.Cache, q *query.Query) (*Cursor[Station], error) {
	stmt, err := query.BuildStations(q, conn.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := a.run(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}
	src := &rowSource[Station]{stmt: stmt.SQL, rows: rows, scan: a.scanner(lc).scanStation}
	return newCursor[Station](src, rows, 0), nil
}

func (a *Archive) queryStationData(ctx context.Context, conn *backend.Conn, lc *levtr.Cache, q *query.Query) (*Cursor[StationDatum], error) {
	filter, err := query.ParseAttrFilter(a.table, q.AttrFilter)
	if err != nil {
		return nil, err
	}
	stmt, err := query.BuildStationData(q, conn.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := a.run(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}

	var src best.Source[StationDatum] = &rowSource[StationDatum]{stmt: stmt.SQL, rows: rows, scan: a.scanner(lc).scanStationDatum}
	if filter != nil {
		src = &filterSource[StationDatum]{Source: src, keep: func(d StationDatum) bool {
			return filter.Match(d.Var.Attrs())
		}}
	}
	return newCursor(src, rows, limitAfter(q)), nil
}

// queryData runs a measured value query.
//
// Rows rejected by the attribute filter are dropped before best-value
// selection, so the best value of an event is chosen among the values that
// pass the filter. prios ranks the reports for best-value selection.
func (a *Archive) queryData(ctx context.Context, conn *backend.Conn, lc *levtr.Cache, prios best.Priorities, q *query.Query) (*Cursor[Datum], error) {
	filter, err := query.ParseAttrFilter(a.table, q.AttrFilter)
	if err != nil {
		return nil, err
	}
	stmt, err := query.BuildData(q, conn.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := a.run(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}

	var src best.Source[Datum] = &rowSource[Datum]{stmt: stmt.SQL, rows: rows, scan: a.scanner(lc).scanDatum}
	if filter != nil {
		src = &filterSource[Datum]{Source: src, keep: func(d Datum) bool {
			return filter.Match(d.Var.Attrs())
		}}
	}
	if q.Best {
		src = best.NewSelector(src, datumEvent, reportPriority(prios))
	}
	return newCursor(src, rows, limitAfter(q)), nil
}

func (a *Archive) querySummary(ctx context.Context, conn *backend.Conn, lc *levtr.Cache, q *query.Query) (*Cursor[SummaryEntry], error) {
	if q.AttrFilter != "" {
		return nil, fmt.Errorf("%w: attribute filters do not apply to summaries", query.ErrInvalidQuery)
	}
	stmt, err := query.BuildSummary(q, conn.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := a.run(ctx, conn, stmt)
	if err != nil {
		return nil, err
	}
	src := &rowSource[SummaryEntry]{stmt: stmt.SQL, rows: rows, scan: a.scanner(lc).scanSummary}
	return newCursor[SummaryEntry](src, rows, 0), nil
}
