package query

import (
	"fmt"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

// Domain errors for the query package.
var (
	// ErrUnknownKey is returned by ParseKey for names outside the key set.
	ErrUnknownKey = fmt.Errorf("%w: unknown query key", dberrors.ErrConsistency)

	// ErrInvalidValue is returned when a key's value cannot be parsed.
	ErrInvalidValue = fmt.Errorf("%w: invalid query value", dberrors.ErrConsistency)

	// ErrInvalidQuery is returned for contradictory predicate combinations.
	ErrInvalidQuery = fmt.Errorf("%w: invalid query", dberrors.ErrConsistency)

	// ErrInvalidFilter is returned for malformed attribute filter expressions.
	ErrInvalidFilter = fmt.Errorf("%w: invalid attribute filter", dberrors.ErrConsistency)
)
