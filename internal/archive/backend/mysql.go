package backend

import (
	"strings"
	"time"
)

// mysqlDuplicateEntry is the server error number for ER_DUP_ENTRY.
const mysqlDuplicateEntry = "Error 1062"

type mysqlDialect struct{}

func (mysqlDialect) Name() string               { return MySQL }
func (mysqlDialect) DriverName() string         { return "mysql" }
func (mysqlDialect) Rebind(query string) string { return query }
func (mysqlDialect) SupportsReturning() bool    { return false }

// Escape also escapes backslashes, which MySQL treats as escape characters
// unless NO_BACKSLASH_ESCAPES is set.
func (mysqlDialect) Escape(s string) string {
	return escapeQuotes(strings.ReplaceAll(s, `\`, `\\`))
}

func (mysqlDialect) TimeArg(t time.Time) any {
	return t.UTC().Format(timeLayout)
}

// IsUniqueViolation matches on the error text since the driver package is
// not linked in.
func (mysqlDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), mysqlDuplicateEntry)
}
