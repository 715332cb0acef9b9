// Package backend translates the archive's backend-agnostic statements to
// a specific SQL engine and executes them.
//
// Statements are written once with "?" placeholders. A Dialect knows how
// its engine differs: placeholder syntax, string escaping, how timestamps
// are bound, whether INSERT ... RETURNING is available and how a unique
// constraint violation is reported by the driver.
//
// Supported dialects:
//   - sqlite (github.com/mattn/go-sqlite3)
//   - postgres (github.com/jackc/pgx/v5/stdlib)
//   - duckdb (github.com/marcboeker/go-duckdb)
//   - mysql (statement rendering only; the driver must be registered by
//     the host program under the name "mysql")
//
// Conn is the minimal driver the archive talks to. It wraps either a
// *sql.DB or a *sql.Tx, rebinds placeholders and wraps every driver error
// in a dberrors.BackendError carrying the failing statement.
package backend
