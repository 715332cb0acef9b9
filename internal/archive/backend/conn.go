package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn executes dialect-neutral statements on a Querier.
type Conn struct {
	q       Querier
	dialect Dialect
}

// NewConn binds a Querier to a dialect.
func NewConn(q Querier, dialect Dialect) *Conn {
	return &Conn{q: q, dialect: dialect}
}

// Dialect returns the connection's dialect.
func (c *Conn) Dialect() Dialect { return c.dialect }

// Escape quotes s as a string literal for the connection's dialect.
func (c *Conn) Escape(s string) string { return c.dialect.Escape(s) }

// TimeArg converts a timestamp to a bind argument for the dialect.
func (c *Conn) TimeArg(t time.Time) any { return c.dialect.TimeArg(t) }

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, dberrors.Backend(query, err)
	}
	return res, nil
}

// Query runs a statement returning rows. The caller must close the rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, dberrors.Backend(query, err)
	}
	return rows, nil
}

// QueryRow runs a statement returning at most one row.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *Row {
	return &Row{row: c.q.QueryRowContext(ctx, c.dialect.Rebind(query), args...), query: query}
}

// Row is the result of QueryRow.
type Row struct {
	row   *sql.Row
	query string
}

// Scan copies the row into dest. A missing row is reported as
// dberrors.ErrNotFound.
func (r *Row) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return dberrors.ErrNotFound
	default:
		return dberrors.Backend(r.query, err)
	}
}

// Stmt is a statement prepared once and executed many times.
type Stmt struct {
	stmt  *sql.Stmt
	query string
}

// Prepare compiles a statement.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	stmt, err := c.q.PrepareContext(ctx, c.dialect.Rebind(query))
	if err != nil {
		return nil, dberrors.Backend(query, err)
	}
	return &Stmt{stmt: stmt, query: query}, nil
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, dberrors.Backend(s.query, err)
	}
	return res, nil
}

// Close releases the prepared statement.
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// InsertID runs an INSERT of a single row with an integer "id" primary key
// and returns the new id, using RETURNING when the dialect supports it and
// LastInsertId otherwise.
func (c *Conn) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	if c.dialect.SupportsReturning() {
		var id int64
		if err := c.QueryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := c.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert id: %w", dberrors.ErrUnimplemented, err)
	}
	return id, nil
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func (c *Conn) IsUniqueViolation(err error) bool {
	return c.dialect.IsUniqueViolation(err)
}
