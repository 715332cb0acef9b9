package variable

import (
	"fmt"
	"strconv"
)

// Varcode is a packed WMO descriptor: 2 bits F, 6 bits X, 8 bits Y.
type Varcode uint16

// varcodeLetters maps the F part to its conventional letter.
const varcodeLetters = "BRCD"

// NewVarcode packs the F, X and Y parts of a descriptor.
func NewVarcode(f, x, y int) Varcode {
	return Varcode((f&0x3)<<14 | (x&0x3f)<<8 | (y & 0xff))
}

// F returns the descriptor class (0 for table B elements).
func (c Varcode) F() int { return int(c>>14) & 0x3 }

// X returns the descriptor category.
func (c Varcode) X() int { return int(c>>8) & 0x3f }

// Y returns the descriptor entry.
func (c Varcode) Y() int { return int(c) & 0xff }

// String formats the code as letter + XX + YYY, e.g. "B12101".
func (c Varcode) String() string {
	return fmt.Sprintf("%c%02d%03d", varcodeLetters[c.F()], c.X(), c.Y())
}

// ParseVarcode parses "B12101" style codes. The letter may be omitted for
// table B codes written as six digits ("012101").
func ParseVarcode(s string) (Varcode, error) {
	var f int
	var digits string

	switch len(s) {
	case 6:
		switch s[0] {
		case 'B', 'b':
			f = 0
		case 'R', 'r':
			f = 1
		case 'C', 'c':
			f = 2
		case 'D', 'd':
			f = 3
		case '0', '1', '2', '3':
			f = int(s[0] - '0')
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidVarcode, s)
		}
		digits = s[1:]
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidVarcode, s)
	}

	x, err := strconv.Atoi(digits[:2])
	if err != nil || x < 0 || x > 63 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVarcode, s)
	}
	y, err := strconv.Atoi(digits[2:])
	if err != nil || y < 0 || y > 255 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVarcode, s)
	}

	return NewVarcode(f, x, y), nil
}

// MustParseVarcode is ParseVarcode for compile-time constants; it panics on error.
func MustParseVarcode(s string) Varcode {
	c, err := ParseVarcode(s)
	if err != nil {
		panic(err)
	}
	return c
}
