package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
)

// Statement is a rendered query with "?" placeholders.
type Statement struct {
	SQL  string
	Args []any
}

// Column layouts of the built statements, in select order.
const (
	// StationColumns: station id, report memo, priority, lat, lon, ident.
	StationColumns = "s.id, r.memo, r.prio, s.lat, s.lon, s.ident"

	// StationDataColumns: row id, station columns, code, value, attrs.
	StationDataColumns = "sd.id, " + StationColumns + ", sd.code, sd.value, sd.attrs"

	// DataColumns: row id, station columns, levtr id, the seven levtr
	// fields, datetime, code, value, attrs.
	DataColumns = "d.id, " + StationColumns + ", d.id_levtr, " + levtrColumns +
		", d.datetime, d.code, d.value, d.attrs"

	// SummaryColumns: station columns, levtr id, levtr fields, code,
	// count, min datetime, max datetime.
	SummaryColumns = StationColumns + ", d.id_levtr, " + levtrColumns +
		", d.code, COUNT(*), MIN(d.datetime), MAX(d.datetime)"

	levtrColumns = "lt.ltype1, lt.l1, lt.ltype2, lt.l2, lt.pind, lt.p1, lt.p2"

	stationFrom     = "station s JOIN repinfo r ON r.id = s.rep"
	stationDataFrom = "station_data sd JOIN station s ON s.id = sd.id_station JOIN repinfo r ON r.id = s.rep"
	dataFrom        = "data d JOIN station s ON s.id = d.id_station JOIN repinfo r ON r.id = s.rep" +
		" JOIN levtr lt ON lt.id = d.id_levtr"
)

// BuildStations selects the stations matching the station predicates and,
// when data predicates are set, having at least one matching value.
func BuildStations(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}

	wb := NewWhereBuilder()
	addStationFilters(wb, q)
	if q.hasDataFilter() {
		sub := NewWhereBuilder()
		sub.AddClause("d.id_station = s.id")
		addDataFilters(sub, q, dialect)
		wb.AddNested("EXISTS (SELECT 1 FROM data d JOIN levtr lt ON lt.id = d.id_levtr WHERE %s)", sub)
	}

	where, args := wb.Build()
	sql := "SELECT " + StationColumns + " FROM " + stationFrom + " WHERE " + where +
		" ORDER BY s.id" + limitClause(q)
	return Statement{SQL: sql, Args: args}, nil
}

// BuildStationData selects station metadata values. Datetime and
// level/time range predicates do not apply to station data and are ignored.
func BuildStationData(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	if q.Best {
		return Statement{}, fmt.Errorf("%w: best-value selection applies to measured data only", ErrInvalidQuery)
	}

	wb := stationDataWhere(q)
	where, args := wb.Build()
	sql := "SELECT " + StationDataColumns +
		" FROM " + stationDataFrom + " WHERE " + where + " ORDER BY s.id, sd.code" + limitClause(q)
	return Statement{SQL: sql, Args: args}, nil
}

// BuildData selects measured values.
//
// Rows are ordered by station, datetime, level/time range and variable.
// With q.Best rows are ordered by position, identifier, datetime,
// level/time range and variable instead, so that the values of one event
// coming from different reports are adjacent.
func BuildData(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}

	where, args := dataWhere(q, dialect).Build()
	order := " ORDER BY s.id, d.datetime, " + levtrColumns + ", d.code"
	if q.Best {
		order = " ORDER BY s.lat, s.lon, s.ident, d.datetime, " + levtrColumns + ", d.code, d.id"
	}
	sql := "SELECT " + DataColumns + " FROM " + dataFrom + " WHERE " + where + order + limitClause(q)
	return Statement{SQL: sql, Args: args}, nil
}

// BuildSummary groups the matching measured values by station, level/time
// range and variable.
func BuildSummary(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	if q.Best {
		return Statement{}, fmt.Errorf("%w: best-value selection is not available for summaries", ErrInvalidQuery)
	}

	where, args := dataWhere(q, dialect).Build()
	group := StationColumns + ", d.id_levtr, " + levtrColumns + ", d.code"
	sql := "SELECT " + SummaryColumns + " FROM " + dataFrom + " WHERE " + where +
		" GROUP BY " + group + " ORDER BY s.id, " + levtrColumns + ", d.code" + limitClause(q)
	return Statement{SQL: sql, Args: args}, nil
}

// BuildDataIDs selects the ids of the matching measured values.
func BuildDataIDs(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	where, args := dataWhere(q, dialect).Build()
	sql := "SELECT d.id FROM " + dataFrom + " WHERE " + where + " ORDER BY d.id"
	return Statement{SQL: sql, Args: args}, nil
}

// BuildStationDataIDs selects the ids of the matching station values.
func BuildStationDataIDs(q *Query, dialect backend.Dialect) (Statement, error) {
	if err := q.Validate(); err != nil {
		return Statement{}, err
	}
	where, args := stationDataWhere(q).Build()
	sql := "SELECT sd.id FROM " + stationDataFrom + " WHERE " + where + " ORDER BY sd.id"
	return Statement{SQL: sql, Args: args}, nil
}

func dataWhere(q *Query, dialect backend.Dialect) *WhereBuilder {
	wb := NewWhereBuilder()
	addStationFilters(wb, q)
	addDataFilters(wb, q, dialect)
	return wb
}

func stationDataWhere(q *Query) *WhereBuilder {
	wb := NewWhereBuilder()
	addStationFilters(wb, q)
	wb.AddIn("sd.code", codeArgs(q))
	return wb
}

// limitClause renders LIMIT when it can be applied in SQL. Best-value and
// attribute-filtered queries drop rows after the database returns them, so
// their limit is applied by the reader.
func limitClause(q *Query) string {
	if q.Limit <= 0 || q.Best || q.AttrFilter != "" {
		return ""
	}
	return " LIMIT " + strconv.Itoa(q.Limit)
}

func addStationFilters(wb *WhereBuilder, q *Query) {
	if q.AnaID != nil {
		wb.AddClause("s.id = ?", *q.AnaID)
	}
	if q.RepMemo != nil {
		wb.AddClause("r.memo = ?", *q.RepMemo)
	}
	if q.PrioMin != nil {
		wb.AddClause("r.prio >= ?", *q.PrioMin)
	}
	if q.PrioMax != nil {
		wb.AddClause("r.prio <= ?", *q.PrioMax)
	}
	if q.LatMin != nil {
		wb.AddClause("s.lat >= ?", *q.LatMin)
	}
	if q.LatMax != nil {
		wb.AddClause("s.lat <= ?", *q.LatMax)
	}
	addLonFilter(wb, q)
	if q.Ident != nil {
		wb.AddClause("s.ident = ?", *q.Ident)
	}
	if q.Mobile != nil {
		if *q.Mobile {
			wb.AddClause("s.ident <> ''")
		} else {
			wb.AddClause("s.ident = ''")
		}
	}
}

// addLonFilter adds the longitude range. Bounds are normalised to
// [-180, 180); a range whose minimum ends up above its maximum wraps
// around the antimeridian.
func addLonFilter(wb *WhereBuilder, q *Query) {
	if q.LonMin == nil || q.LonMax == nil {
		return
	}
	if int64(*q.LonMax)-int64(*q.LonMin) >= 360*coordScale {
		return
	}
	lonMin := batch.NormalizeLon(*q.LonMin)
	lonMax := batch.NormalizeLon(*q.LonMax)
	if lonMin <= lonMax {
		wb.AddClause("s.lon >= ? AND s.lon <= ?", lonMin, lonMax)
	} else {
		wb.AddClause("(s.lon >= ? OR s.lon <= ?)", lonMin, lonMax)
	}
}

func addDataFilters(wb *WhereBuilder, q *Query, dialect backend.Dialect) {
	if q.DatetimeMin != nil {
		wb.AddClause("d.datetime >= ?", dialect.TimeArg(*q.DatetimeMin))
	}
	if q.DatetimeMax != nil {
		wb.AddClause("d.datetime <= ?", dialect.TimeArg(*q.DatetimeMax))
	}
	if q.Level != nil {
		addLevtrField(wb, "lt.ltype1", q.Level.Ltype1)
		addLevtrField(wb, "lt.l1", q.Level.L1)
		addLevtrField(wb, "lt.ltype2", q.Level.Ltype2)
		addLevtrField(wb, "lt.l2", q.Level.L2)
	}
	if q.Trange != nil {
		addLevtrField(wb, "lt.pind", q.Trange.Pind)
		addLevtrField(wb, "lt.p1", q.Trange.P1)
		addLevtrField(wb, "lt.p2", q.Trange.P2)
	}
	wb.AddIn("d.code", codeArgs(q))
}

func addLevtrField(wb *WhereBuilder, column string, value int) {
	if value == levtr.Missing {
		return
	}
	wb.AddClause(column+" = ?", value)
}

func codeArgs(q *Query) []any {
	if len(q.Varcodes) == 0 {
		return nil
	}
	args := make([]any, len(q.Varcodes))
	for i, c := range q.Varcodes {
		args[i] = int(c)
	}
	return args
}

// Describe renders a statement with its arguments inlined for logs.
func (s Statement) Describe(dialect backend.Dialect) string {
	var b strings.Builder
	arg := 0
	for i := 0; i < len(s.SQL); i++ {
		if s.SQL[i] != '?' || arg >= len(s.Args) {
			b.WriteByte(s.SQL[i])
			continue
		}
		switch v := s.Args[arg].(type) {
		case string:
			b.WriteString(dialect.Escape(v))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
		arg++
	}
	return b.String()
}
