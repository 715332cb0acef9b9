package backend

import (
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return SQLite }
func (sqliteDialect) DriverName() string         { return "sqlite3" }
func (sqliteDialect) Rebind(query string) string { return query }
func (sqliteDialect) Escape(s string) string     { return escapeQuotes(s) }
func (sqliteDialect) SupportsReturning() bool    { return true }

// TimeArg stores timestamps as UTC text so that they compare correctly
// with string literals and sort lexically.
func (sqliteDialect) TimeArg(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
