package backend

import (
	"errors"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
)

type duckdbDialect struct{}

func (duckdbDialect) Name() string               { return DuckDB }
func (duckdbDialect) DriverName() string         { return "duckdb" }
func (duckdbDialect) Rebind(query string) string { return query }
func (duckdbDialect) Escape(s string) string     { return escapeQuotes(s) }
func (duckdbDialect) SupportsReturning() bool    { return true }
func (duckdbDialect) TimeArg(t time.Time) any    { return t.UTC() }

// IsUniqueViolation matches constraint errors on duplicate keys. DuckDB
// reports NOT NULL and foreign key failures with the same error type.
func (duckdbDialect) IsUniqueViolation(err error) bool {
	var duckErr *duckdb.Error
	if !errors.As(err, &duckErr) {
		return false
	}
	return duckErr.Type == duckdb.ErrorTypeConstraint &&
		strings.Contains(duckErr.Msg, "Duplicate key")
}
