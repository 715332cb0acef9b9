package archive

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/codec"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// datetimeLayout is the text form of datetimes returned by Get.
const datetimeLayout = "2006-01-02 15:04:05"

// Record is a query result row whose fields can be read by key.
type Record interface {
	// Get returns the text form of a field. The boolean is false when the
	// row has no such field or the field is unset.
	Get(key query.Key) (string, bool)
}

// Station is a station as returned by queries.
type Station struct {
	ID       int64
	Report   string
	Priority int
	Coords   batch.Coords
	// Ident is empty for fixed stations.
	Ident string
}

// Mobile reports whether the station has an identifier.
func (s Station) Mobile() bool { return s.Ident != "" }

// Get implements Record.
func (s Station) Get(key query.Key) (string, bool) {
	switch key {
	case query.KeyAnaID:
		return strconv.FormatInt(s.ID, 10), true
	case query.KeyRepMemo:
		return s.Report, true
	case query.KeyPriority:
		return strconv.Itoa(s.Priority), true
	case query.KeyLat:
		return strconv.FormatFloat(s.Coords.LatDegrees(), 'f', 5, 64), true
	case query.KeyLon:
		return strconv.FormatFloat(s.Coords.LonDegrees(), 'f', 5, 64), true
	case query.KeyIdent:
		return s.Ident, s.Ident != ""
	case query.KeyMobile:
		return strconv.FormatBool(s.Mobile()), true
	}
	return "", false
}

// StationDatum is one station metadata value.
type StationDatum struct {
	// ID is the station_data row id, used as context id by the attribute
	// operations.
	ID      int64
	Station Station
	Var     variable.Var
}

// Get implements Record.
func (d StationDatum) Get(key query.Key) (string, bool) {
	switch key {
	case query.KeyContextID:
		return strconv.FormatInt(d.ID, 10), true
	case query.KeyVar:
		return d.Var.Code().String(), true
	case query.KeyValue:
		return d.Var.Format(), d.Var.IsSet()
	}
	return d.Station.Get(key)
}

// Datum is one measured value.
type Datum struct {
	// ID is the data row id, used as context id by the attribute operations.
	ID       int64
	Station  Station
	LevtrID  int64
	Level    levtr.Level
	Trange   levtr.Trange
	Datetime time.Time
	Var      variable.Var
}

// Get implements Record.
func (d Datum) Get(key query.Key) (string, bool) {
	switch key {
	case query.KeyContextID:
		return strconv.FormatInt(d.ID, 10), true
	case query.KeyDatetime:
		return d.Datetime.UTC().Format(datetimeLayout), true
	case query.KeyVar:
		return d.Var.Code().String(), true
	case query.KeyValue:
		return d.Var.Format(), d.Var.IsSet()
	}
	if v, ok := levtrField(d.Level, d.Trange, key); ok {
		return v, v != ""
	}
	return d.Station.Get(key)
}

// SummaryEntry describes the values stored for one (station, level,
// time range, variable) combination.
type SummaryEntry struct {
	Station     Station
	LevtrID     int64
	Level       levtr.Level
	Trange      levtr.Trange
	Code        variable.Varcode
	Count       int
	DatetimeMin time.Time
	DatetimeMax time.Time
}

// Get implements Record.
func (e SummaryEntry) Get(key query.Key) (string, bool) {
	switch key {
	case query.KeyVar:
		return e.Code.String(), true
	case query.KeyDatetimeMin:
		return e.DatetimeMin.UTC().Format(datetimeLayout), true
	case query.KeyDatetimeMax:
		return e.DatetimeMax.UTC().Format(datetimeLayout), true
	}
	if v, ok := levtrField(e.Level, e.Trange, key); ok {
		return v, v != ""
	}
	return e.Station.Get(key)
}

// levtrField returns the text of a level or time range field; missing
// fields are returned as "". The boolean reports whether key is a levtr key.
func levtrField(l levtr.Level, t levtr.Trange, key query.Key) (string, bool) {
	var v int
	switch key {
	case query.KeyLeveltype1:
		v = l.Ltype1
	case query.KeyL1:
		v = l.L1
	case query.KeyLeveltype2:
		v = l.Ltype2
	case query.KeyL2:
		v = l.L2
	case query.KeyPindicator:
		v = t.Pind
	case query.KeyP1:
		v = t.P1
	case query.KeyP2:
		v = t.P2
	default:
		return "", false
	}
	if v == levtr.Missing {
		return "", true
	}
	return strconv.Itoa(v), true
}

// scanner decodes rows into records. It carries the dictionary needed to
// rebuild variables.
type scanner struct {
	table *variable.Vartable
	levtr *levtr.Cache
}

func (sc *scanner) variable(code int, value string, attrs []byte) (variable.Var, error) {
	info, err := sc.table.Query(variable.Varcode(code))
	if err != nil {
		return variable.Var{}, err
	}
	v := variable.New(info)
	if err := v.SetText(value); err != nil {
		return variable.Var{}, fmt.Errorf("decoding %s value %q: %w", info.Code, value, err)
	}
	if len(attrs) > 0 {
		if err := codec.DecodeAttrs(sc.table, &v, attrs); err != nil {
			return variable.Var{}, fmt.Errorf("decoding %s attributes: %w", info.Code, err)
		}
	}
	return v, nil
}

func (sc *scanner) scanStation(rows *sql.Rows) (Station, error) {
	var s Station
	if err := rows.Scan(&s.ID, &s.Report, &s.Priority, &s.Coords.Lat, &s.Coords.Lon, &s.Ident); err != nil {
		return Station{}, err
	}
	return s, nil
}

func (sc *scanner) scanStationDatum(rows *sql.Rows) (StationDatum, error) {
	var (
		d     StationDatum
		s     Station
		code  int
		value string
		attrs []byte
	)
	err := rows.Scan(&d.ID, &s.ID, &s.Report, &s.Priority, &s.Coords.Lat, &s.Coords.Lon, &s.Ident,
		&code, &value, &attrs)
	if err != nil {
		return StationDatum{}, err
	}
	d.Station = s
	if d.Var, err = sc.variable(code, value, attrs); err != nil {
		return StationDatum{}, err
	}
	return d, nil
}

func (sc *scanner) scanDatum(rows *sql.Rows) (Datum, error) {
	var (
		d     Datum
		s     Station
		dt    backend.Time
		code  int
		value string
		attrs []byte
	)
	err := rows.Scan(&d.ID, &s.ID, &s.Report, &s.Priority, &s.Coords.Lat, &s.Coords.Lon, &s.Ident,
		&d.LevtrID, &d.Level.Ltype1, &d.Level.L1, &d.Level.Ltype2, &d.Level.L2,
		&d.Trange.Pind, &d.Trange.P1, &d.Trange.P2,
		&dt, &code, &value, &attrs)
	if err != nil {
		return Datum{}, err
	}
	d.Station = s
	d.Datetime = dt.UTC()
	sc.levtr.Add(d.LevtrID, d.Level, d.Trange)
	if d.Var, err = sc.variable(code, value, attrs); err != nil {
		return Datum{}, err
	}
	return d, nil
}

func (sc *scanner) scanSummary(rows *sql.Rows) (SummaryEntry, error) {
	var (
		e            SummaryEntry
		s            Station
		code         int
		minDT, maxDT backend.Time
	)
	err := rows.Scan(&s.ID, &s.Report, &s.Priority, &s.Coords.Lat, &s.Coords.Lon, &s.Ident,
		&e.LevtrID, &e.Level.Ltype1, &e.Level.L1, &e.Level.Ltype2, &e.Level.L2,
		&e.Trange.Pind, &e.Trange.P1, &e.Trange.P2,
		&code, &e.Count, &minDT, &maxDT)
	if err != nil {
		return SummaryEntry{}, err
	}
	e.Station = s
	e.Code = variable.Varcode(code)
	e.DatetimeMin = minDT.UTC()
	e.DatetimeMax = maxDT.UTC()
	return e, nil
}
