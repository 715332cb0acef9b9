package batch

import (
	"fmt"
	"math"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

// coordScale is the fixed-point scale of coordinates: 1e-5 degrees.
const coordScale = 100000

// Coords is a position in fixed-point units of 1e-5 degrees.
type Coords struct {
	Lat int32
	Lon int32
}

// NewCoords converts degrees to fixed point, normalising the longitude to
// [-180, 180). Latitudes beyond the int32 range saturate, so they still fail
// Validate.
func NewCoords(lat, lon float64) Coords {
	return Coords{
		Lat: toFixed(lat),
		Lon: NormalizeLon(toFixed(wrapLon(lon))),
	}
}

// ParseCoords is NewCoords for untrusted input: it rejects non-finite
// values, latitudes outside [-90, 90] and longitudes outside [-360, 360].
func ParseCoords(lat, lon float64) (Coords, error) {
	switch {
	case math.IsNaN(lat) || math.IsInf(lat, 0) || math.Abs(lat) > 90:
		return Coords{}, fmt.Errorf("%w: latitude %v out of range", dberrors.ErrConsistency, lat)
	case math.IsNaN(lon) || math.IsInf(lon, 0) || math.Abs(lon) > 360:
		return Coords{}, fmt.Errorf("%w: longitude %v out of range", dberrors.ErrConsistency, lon)
	}
	return NewCoords(lat, lon), nil
}

// wrapLon wraps degrees into [-180, 180) before scaling.
func wrapLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}

func toFixed(deg float64) int32 {
	v := math.Round(deg * coordScale)
	switch {
	case math.IsNaN(v):
		return math.MaxInt32
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// NormalizeLon wraps a fixed-point longitude into [-180, 180).
func NormalizeLon(lon int32) int32 {
	const full = 360 * coordScale
	const half = 180 * coordScale
	l := (int64(lon) + half) % full
	if l < 0 {
		l += full
	}
	return int32(l - half)
}

// LatDegrees returns the latitude in degrees.
func (c Coords) LatDegrees() float64 { return float64(c.Lat) / coordScale }

// LonDegrees returns the longitude in degrees.
func (c Coords) LonDegrees() float64 { return float64(c.Lon) / coordScale }

// Validate checks the latitude range.
func (c Coords) Validate() error {
	if c.Lat < -90*coordScale || c.Lat > 90*coordScale {
		return fmt.Errorf("%w: latitude %.5f out of range", dberrors.ErrConsistency, c.LatDegrees())
	}
	return nil
}

// String formats the coordinates as "lat,lon" in degrees.
func (c Coords) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.LatDegrees(), c.LonDegrees())
}
