package variable

import (
	"fmt"
	"math"
	"strings"
)

// Type is the storage type of a variable.
type Type int

// Variable types.
const (
	TypeInteger Type = iota
	TypeDecimal
	TypeString
	TypeBinary
)

// String returns the lower-case type name used in dictionary files.
func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a type name as written in dictionary files.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "integer", "int":
		return TypeInteger, nil
	case "decimal", "float":
		return TypeDecimal, nil
	case "string", "text":
		return TypeString, nil
	case "binary":
		return TypeBinary, nil
	default:
		return 0, fmt.Errorf("variable: unknown type %q", s)
	}
}

// IsNumeric reports whether values of this type are fixed-point integers.
func (t Type) IsNumeric() bool {
	return t == TypeInteger || t == TypeDecimal
}

// Varinfo describes one dictionary entry.
type Varinfo struct {
	Code        Varcode
	Description string
	Unit        string
	Type        Type

	// Scale is the decimal scale: value = raw / 10^Scale. Only meaningful
	// for TypeDecimal; may be negative (B10004 pressure uses -1).
	Scale int

	// Len is the maximum length in characters (strings) or bytes (binary).
	// Zero means unlimited.
	Len int
}

// decode converts a raw fixed-point integer to its physical value.
func (i *Varinfo) decode(raw int32) float64 {
	switch {
	case i.Type != TypeDecimal || i.Scale == 0:
		return float64(raw)
	case i.Scale > 0:
		return float64(raw) / math.Pow10(i.Scale)
	default:
		return float64(raw) * math.Pow10(-i.Scale)
	}
}

// encode converts a physical value to its raw fixed-point integer.
func (i *Varinfo) encode(v float64) (int32, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s = %v", ErrOutOfRange, i.Code, v)
	}
	scaled := v
	if i.Type == TypeDecimal {
		switch {
		case i.Scale > 0:
			scaled = v * math.Pow10(i.Scale)
		case i.Scale < 0:
			scaled = v / math.Pow10(-i.Scale)
		}
	}
	scaled = math.Round(scaled)
	if scaled > math.MaxInt32 || scaled < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s = %v", ErrOutOfRange, i.Code, v)
	}
	return int32(scaled), nil
}
