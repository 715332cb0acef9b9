package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

// Backend names accepted by LookupDialect.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	DuckDB   = "duckdb"
	MySQL    = "mysql"
)

// Dialect describes how one SQL engine differs from the statements the
// archive writes.
type Dialect interface {
	// Name returns the backend name ("sqlite", "postgres", ...).
	Name() string

	// DriverName returns the database/sql driver name to open.
	DriverName() string

	// Rebind converts "?" placeholders to the engine's syntax.
	Rebind(query string) string

	// Escape quotes s as a string literal.
	Escape(s string) string

	// TimeArg converts a timestamp to a bind argument.
	TimeArg(t time.Time) any

	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation(err error) bool
}

// LookupDialect returns the dialect for a backend name.
// Returns dberrors.ErrUnimplemented for unsupported backends.
func LookupDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	case Postgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case DuckDB:
		return duckdbDialect{}, nil
	case MySQL:
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: backend %q", dberrors.ErrUnimplemented, name)
	}
}

// timeLayout is the textual timestamp format used where the engine stores
// timestamps as text.
const timeLayout = "2006-01-02 15:04:05"

// escapeQuotes doubles single quotes and wraps s in quotes.
func escapeQuotes(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// rebindDollar rewrites "?" placeholders outside string literals as $1, $2, ...
func rebindDollar(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)

	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
