package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// coordScale is the fixed-point scale of stored coordinates.
const coordScale = 100000

// datetimeLayouts are accepted by Set for datetime keys.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Query is a set of optional predicates. Nil pointers and empty values are
// unset and do not restrict the result.
type Query struct {
	AnaID   *int64
	RepMemo *string
	PrioMin *int
	PrioMax *int

	// Coordinates are in fixed-point 1e-5 degrees. A longitude range with
	// LonMin > LonMax crosses the antimeridian.
	LatMin *int32
	LatMax *int32
	LonMin *int32
	LonMax *int32

	Ident  *string
	Mobile *bool

	DatetimeMin *time.Time
	DatetimeMax *time.Time

	// Level and Trange match exactly, with levtr.Missing fields acting as
	// wildcards.
	Level  *levtr.Level
	Trange *levtr.Trange

	Varcodes []variable.Varcode

	// AttrFilter is an attribute filter expression such as "B33007>50".
	AttrFilter string

	// Limit caps the number of returned rows; zero means no limit.
	Limit int

	// Best selects one value per event by report priority.
	Best bool
}

// Set parses value for key. Variable names are resolved through table,
// which may be nil to accept only varcodes.
func (q *Query) Set(table *variable.Vartable, key Key, value string) error {
	value = strings.TrimSpace(value)
	invalid := func(err error) error {
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, value, err)
		}
		return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, value)
	}

	switch key {
	case KeyAnaID:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return invalid(err)
		}
		q.AnaID = &id

	case KeyRepMemo:
		q.RepMemo = &value

	case KeyPriority, KeyPrioMin, KeyPrioMax:
		p, err := strconv.Atoi(value)
		if err != nil {
			return invalid(err)
		}
		if key != KeyPrioMax {
			q.PrioMin = &p
		}
		if key != KeyPrioMin {
			q.PrioMax = &p
		}

	case KeyLat, KeyLatMin, KeyLatMax, KeyLon, KeyLonMin, KeyLonMax:
		c, err := parseCoord(value)
		if err != nil {
			return invalid(err)
		}
		switch key {
		case KeyLat:
			q.LatMin, q.LatMax = &c, &c
		case KeyLatMin:
			q.LatMin = &c
		case KeyLatMax:
			q.LatMax = &c
		case KeyLon:
			q.LonMin, q.LonMax = &c, &c
		case KeyLonMin:
			q.LonMin = &c
		case KeyLonMax:
			q.LonMax = &c
		}

	case KeyIdent:
		q.Ident = &value

	case KeyMobile:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return invalid(err)
		}
		q.Mobile = &b

	case KeyDatetime, KeyDatetimeMin, KeyDatetimeMax:
		dt, err := parseDatetime(value)
		if err != nil {
			return invalid(err)
		}
		if key != KeyDatetimeMax {
			q.DatetimeMin = &dt
		}
		if key != KeyDatetimeMin {
			q.DatetimeMax = &dt
		}

	case KeyLeveltype1, KeyL1, KeyLeveltype2, KeyL2:
		n, err := parseLevtrField(value)
		if err != nil {
			return invalid(err)
		}
		if q.Level == nil {
			l := levtr.MissingLevel()
			q.Level = &l
		}
		switch key {
		case KeyLeveltype1:
			q.Level.Ltype1 = n
		case KeyL1:
			q.Level.L1 = n
		case KeyLeveltype2:
			q.Level.Ltype2 = n
		case KeyL2:
			q.Level.L2 = n
		}

	case KeyPindicator, KeyP1, KeyP2:
		n, err := parseLevtrField(value)
		if err != nil {
			return invalid(err)
		}
		if q.Trange == nil {
			tr := levtr.MissingTrange()
			q.Trange = &tr
		}
		switch key {
		case KeyPindicator:
			q.Trange.Pind = n
		case KeyP1:
			q.Trange.P1 = n
		case KeyP2:
			q.Trange.P2 = n
		}

	case KeyVar, KeyVarlist:
		codes, err := parseVarlist(table, value)
		if err != nil {
			return invalid(err)
		}
		if key == KeyVar && len(codes) != 1 {
			return invalid(nil)
		}
		q.Varcodes = codes

	case KeyAttrFilter:
		if _, err := ParseAttrFilter(table, value); err != nil {
			return err
		}
		q.AttrFilter = value

	case KeyLimit:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return invalid(err)
		}
		q.Limit = n

	case KeyQuery:
		switch strings.ToLower(value) {
		case "best":
			q.Best = true
		case "":
			q.Best = false
		default:
			return invalid(nil)
		}

	default:
		return fmt.Errorf("%w: %s cannot be used as a query parameter", ErrInvalidValue, key)
	}
	return nil
}

// Validate rejects contradictory predicate combinations.
func (q *Query) Validate() error {
	if q.PrioMin != nil && q.PrioMax != nil && *q.PrioMin > *q.PrioMax {
		return fmt.Errorf("%w: priomin %d > priomax %d", ErrInvalidQuery, *q.PrioMin, *q.PrioMax)
	}
	if q.LatMin != nil && q.LatMax != nil && *q.LatMin > *q.LatMax {
		return fmt.Errorf("%w: latmin > latmax", ErrInvalidQuery)
	}
	for _, lat := range []*int32{q.LatMin, q.LatMax} {
		if lat != nil && (*lat < -90*coordScale || *lat > 90*coordScale) {
			return fmt.Errorf("%w: latitude out of range", ErrInvalidQuery)
		}
	}
	if (q.LonMin == nil) != (q.LonMax == nil) {
		return fmt.Errorf("%w: lonmin and lonmax must be set together", ErrInvalidQuery)
	}
	if q.DatetimeMin != nil && q.DatetimeMax != nil && q.DatetimeMin.After(*q.DatetimeMax) {
		return fmt.Errorf("%w: datetimemin after datetimemax", ErrInvalidQuery)
	}
	if q.Ident != nil && q.Mobile != nil && !*q.Mobile {
		return fmt.Errorf("%w: ident set on a query for fixed stations", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// hasDataFilter reports whether any predicate on measured values is set.
func (q *Query) hasDataFilter() bool {
	return q.DatetimeMin != nil || q.DatetimeMax != nil ||
		q.Level != nil || q.Trange != nil || len(q.Varcodes) > 0
}

func parseCoord(s string) (int32, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > 360 {
		return 0, fmt.Errorf("coordinate %v out of range", f)
	}
	return int32(math.Round(f * coordScale)), nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised datetime %q", s)
}

func parseLevtrField(s string) (int, error) {
	if s == "-" || s == "" {
		return levtr.Missing, nil
	}
	return strconv.Atoi(s)
}

func parseVarlist(table *variable.Vartable, s string) ([]variable.Varcode, error) {
	var codes []variable.Varcode
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		code, err := resolve(table, name)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("empty variable list")
	}
	return codes, nil
}

func resolve(table *variable.Vartable, name string) (variable.Varcode, error) {
	if table == nil {
		return variable.ParseVarcode(name)
	}
	return table.Resolve(name)
}
