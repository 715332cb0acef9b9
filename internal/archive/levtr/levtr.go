// Package levtr interns (level, time range) descriptors to small integer
// ids stored in the levtr table.
//
// A measured value is tagged with a vertical Level (two layer bounds, each
// a type and a value) and a Trange (statistical processing indicator plus
// two periods). The pair is stored once in levtr and referenced by id from
// data rows. Id StationID (-1) is reserved for station metadata, which has
// neither level nor time range.
package levtr

import (
	"fmt"
	"math"
	"strconv"
)

// Missing marks an unset level or time range field.
const Missing = math.MaxInt32

// StationID is the reserved levtr id for station metadata.
const StationID int64 = -1

// Level is a vertical level or layer.
type Level struct {
	Ltype1 int
	L1     int
	Ltype2 int
	L2     int
}

// Trange is a time range: statistical processing indicator and two periods
// in seconds.
type Trange struct {
	Pind int
	P1   int
	P2   int
}

// MissingLevel returns a level with every field missing.
func MissingLevel() Level {
	return Level{Ltype1: Missing, L1: Missing, Ltype2: Missing, L2: Missing}
}

// MissingTrange returns a time range with every field missing.
func MissingTrange() Trange {
	return Trange{Pind: Missing, P1: Missing, P2: Missing}
}

// NewLevel returns a single-surface level (second layer missing).
func NewLevel(ltype, l int) Level {
	return Level{Ltype1: ltype, L1: l, Ltype2: Missing, L2: Missing}
}

// IsMissing reports whether every field is missing.
func (l Level) IsMissing() bool { return l == MissingLevel() }

// IsMissing reports whether every field is missing.
func (t Trange) IsMissing() bool { return t == MissingTrange() }

// String formats the level as "ltype1,l1,ltype2,l2" with "-" for missing fields.
func (l Level) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", field(l.Ltype1), field(l.L1), field(l.Ltype2), field(l.L2))
}

// String formats the time range as "pind,p1,p2" with "-" for missing fields.
func (t Trange) String() string {
	return fmt.Sprintf("%s,%s,%s", field(t.Pind), field(t.P1), field(t.P2))
}

func field(v int) string {
	if v == Missing {
		return "-"
	}
	return strconv.Itoa(v)
}
