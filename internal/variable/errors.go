package variable

import (
	"errors"
	"fmt"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

// Domain errors for the variable package.
var (
	// ErrInvalidVarcode is returned when a varcode string cannot be parsed.
	ErrInvalidVarcode = errors.New("variable: invalid varcode")

	// ErrUnknownVarcode is returned when a code is not in the dictionary.
	ErrUnknownVarcode = fmt.Errorf("%w: unknown varcode", dberrors.ErrNotFound)

	// ErrTypeMismatch is returned when a value does not fit the variable type.
	ErrTypeMismatch = fmt.Errorf("%w: variable type mismatch", dberrors.ErrConsistency)

	// ErrOutOfRange is returned when a value does not fit a 32-bit fixed-point integer.
	ErrOutOfRange = fmt.Errorf("%w: value out of range", dberrors.ErrConsistency)

	// ErrUnset is returned when reading the value of an unset variable.
	ErrUnset = errors.New("variable: value is not set")
)
