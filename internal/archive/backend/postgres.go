package backend

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type postgresDialect struct{}

func (postgresDialect) Name() string               { return Postgres }
func (postgresDialect) DriverName() string         { return "pgx" }
func (postgresDialect) Rebind(query string) string { return rebindDollar(query) }
func (postgresDialect) SupportsReturning() bool    { return true }

// Escape uses standard_conforming_strings quoting; backslashes are literal.
func (postgresDialect) Escape(s string) string {
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return escapeQuotes(s)
}

func (postgresDialect) TimeArg(t time.Time) any { return t.UTC() }

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
