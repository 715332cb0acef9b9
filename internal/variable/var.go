package variable

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Var is one typed value with its attributes.
//
// The zero Var has no dictionary entry and is unusable; create variables
// with New or Vartable.NewVar. A Var is a value type: copies share the
// dictionary entry but Clone must be used to detach the attribute list.
type Var struct {
	info  *Varinfo
	isSet bool
	ival  int32
	sval  string
	bval  []byte
	attrs []Var
}

// New returns an unset variable for a dictionary entry.
func New(info *Varinfo) Var {
	return Var{info: info}
}

// Code returns the variable code.
func (v *Var) Code() Varcode {
	if v.info == nil {
		return 0
	}
	return v.info.Code
}

// Info returns the dictionary entry.
func (v *Var) Info() *Varinfo { return v.info }

// IsSet reports whether the variable holds a value.
func (v *Var) IsSet() bool { return v.isSet }

// Unset clears the value, keeping attributes.
func (v *Var) Unset() {
	v.isSet = false
	v.ival = 0
	v.sval = ""
	v.bval = nil
}

// SetInt sets the raw fixed-point integer of a numeric variable.
func (v *Var) SetInt(raw int32) error {
	if !v.info.Type.IsNumeric() {
		return fmt.Errorf("%w: %s is %s, not numeric", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	v.Unset()
	v.ival = raw
	v.isSet = true
	return nil
}

// SetFloat sets a numeric variable from its physical value, rounding to
// the variable's scale.
func (v *Var) SetFloat(f float64) error {
	if !v.info.Type.IsNumeric() {
		return fmt.Errorf("%w: %s is %s, not numeric", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	raw, err := v.info.encode(f)
	if err != nil {
		return err
	}
	return v.SetInt(raw)
}

// SetString sets a string variable. For numeric variables the string is
// parsed as a physical value; for binary variables it is stored as bytes.
func (v *Var) SetString(s string) error {
	switch v.info.Type {
	case TypeInteger, TypeDecimal:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %q is not a number", ErrTypeMismatch, v.info.Code, s)
		}
		return v.SetFloat(f)
	case TypeBinary:
		return v.SetBinary([]byte(s))
	}
	if v.info.Len > 0 && utf8.RuneCountInString(s) > v.info.Len {
		return fmt.Errorf("%w: %s longer than %d characters", ErrOutOfRange, v.info.Code, v.info.Len)
	}
	v.Unset()
	v.sval = s
	v.isSet = true
	return nil
}

// SetBinary sets a binary variable. The slice is copied.
func (v *Var) SetBinary(b []byte) error {
	if v.info.Type != TypeBinary {
		return fmt.Errorf("%w: %s is %s, not binary", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	if v.info.Len > 0 && len(b) > v.info.Len {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrOutOfRange, v.info.Code, v.info.Len)
	}
	v.Unset()
	v.bval = append([]byte(nil), b...)
	v.isSet = true
	return nil
}

// Int returns the raw fixed-point integer of a numeric variable.
func (v *Var) Int() (int32, error) {
	if !v.isSet {
		return 0, fmt.Errorf("%w: %s", ErrUnset, v.Code())
	}
	if !v.info.Type.IsNumeric() {
		return 0, fmt.Errorf("%w: %s is %s, not numeric", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	return v.ival, nil
}

// Float returns the physical value of a numeric variable.
func (v *Var) Float() (float64, error) {
	raw, err := v.Int()
	if err != nil {
		return 0, err
	}
	return v.info.decode(raw), nil
}

// Str returns the value of a string variable.
func (v *Var) Str() (string, error) {
	if !v.isSet {
		return "", fmt.Errorf("%w: %s", ErrUnset, v.Code())
	}
	if v.info.Type != TypeString {
		return "", fmt.Errorf("%w: %s is %s, not string", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	return v.sval, nil
}

// Bytes returns the value of a binary variable.
func (v *Var) Bytes() ([]byte, error) {
	if !v.isSet {
		return nil, fmt.Errorf("%w: %s", ErrUnset, v.Code())
	}
	if v.info.Type != TypeBinary {
		return nil, fmt.Errorf("%w: %s is %s, not binary", ErrTypeMismatch, v.info.Code, v.info.Type)
	}
	return v.bval, nil
}

// Text returns the canonical storage form: the raw integer for numeric
// variables, the string itself, or lower-case hex for binary values.
// Unset variables return "".
func (v *Var) Text() string {
	if !v.isSet {
		return ""
	}
	switch v.info.Type {
	case TypeString:
		return v.sval
	case TypeBinary:
		return hex.EncodeToString(v.bval)
	default:
		return strconv.FormatInt(int64(v.ival), 10)
	}
}

// SetText is the inverse of Text.
func (v *Var) SetText(s string) error {
	switch v.info.Type {
	case TypeString:
		return v.SetString(s)
	case TypeBinary:
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("%w: %s: invalid hex value", ErrTypeMismatch, v.info.Code)
		}
		return v.SetBinary(b)
	default:
		raw, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: invalid stored value %q", ErrTypeMismatch, v.info.Code, s)
		}
		return v.SetInt(int32(raw))
	}
}

// Format returns a human readable value: decimals formatted with their
// scale, strings verbatim. Unset variables format as "-".
func (v *Var) Format() string {
	if !v.isSet {
		return "-"
	}
	switch v.info.Type {
	case TypeDecimal:
		prec := v.info.Scale
		if prec < 0 {
			prec = 0
		}
		return strconv.FormatFloat(v.info.decode(v.ival), 'f', prec, 64)
	default:
		return v.Text()
	}
}

// String implements fmt.Stringer as "B12101=273.15".
func (v Var) String() string {
	return v.Code().String() + "=" + v.Format()
}

// Attrs returns the attributes sorted by code. The slice must not be modified.
func (v *Var) Attrs() []Var { return v.attrs }

// Attr returns the attribute with the given code.
func (v *Var) Attr(code Varcode) (Var, bool) {
	i := v.attrIndex(code)
	if i < len(v.attrs) && v.attrs[i].Code() == code {
		return v.attrs[i], true
	}
	return Var{}, false
}

// SetAttr adds or replaces an attribute. Unset attributes are ignored and
// nested attributes are dropped.
func (v *Var) SetAttr(a Var) {
	if !a.isSet {
		return
	}
	a.attrs = nil
	i := v.attrIndex(a.Code())
	if i < len(v.attrs) && v.attrs[i].Code() == a.Code() {
		v.attrs[i] = a
		return
	}
	v.attrs = append(v.attrs, Var{})
	copy(v.attrs[i+1:], v.attrs[i:])
	v.attrs[i] = a
}

// SetAttrs merges attrs into the attribute list.
func (v *Var) SetAttrs(attrs []Var) {
	for _, a := range attrs {
		v.SetAttr(a)
	}
}

// RemoveAttrs drops the attributes with the given codes; with no codes it
// drops every attribute.
func (v *Var) RemoveAttrs(codes ...Varcode) {
	if len(codes) == 0 {
		v.attrs = nil
		return
	}
	kept := v.attrs[:0]
	for _, a := range v.attrs {
		drop := false
		for _, c := range codes {
			if a.Code() == c {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	v.attrs = kept
}

func (v *Var) attrIndex(code Varcode) int {
	return sort.Search(len(v.attrs), func(i int) bool { return v.attrs[i].Code() >= code })
}

// Clone returns a deep copy.
func (v *Var) Clone() Var {
	c := *v
	if v.bval != nil {
		c.bval = append([]byte(nil), v.bval...)
	}
	if v.attrs != nil {
		c.attrs = make([]Var, len(v.attrs))
		for i := range v.attrs {
			c.attrs[i] = v.attrs[i].Clone()
		}
	}
	return c
}

// Equal compares code, value and attributes.
func (v *Var) Equal(o *Var) bool {
	if v.Code() != o.Code() || v.isSet != o.isSet {
		return false
	}
	if v.isSet {
		if v.ival != o.ival || v.sval != o.sval || !bytes.Equal(v.bval, o.bval) {
			return false
		}
	}
	if len(v.attrs) != len(o.attrs) {
		return false
	}
	for i := range v.attrs {
		if !v.attrs[i].Equal(&o.attrs[i]) {
			return false
		}
	}
	return true
}
