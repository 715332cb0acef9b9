package archive

import (
	"database/sql"

	"github.com/nerrad567/obsarchive/internal/archive/best"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/query"
)

// rowSource decodes database rows one at a time.
type rowSource[T any] struct {
	stmt string
	rows *sql.Rows
	scan func(*sql.Rows) (T, error)
	cur  T
	err  error
}

func (s *rowSource[T]) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}
	row, err := s.scan(s.rows)
	if err != nil {
		s.err = err
		return false
	}
	s.cur = row
	return true
}

func (s *rowSource[T]) Row() T { return s.cur }

func (s *rowSource[T]) Err() error {
	if s.err != nil {
		return s.err
	}
	return dberrors.Backend(s.stmt, s.rows.Err())
}

// filterSource skips the rows rejected by keep.
type filterSource[T any] struct {
	best.Source[T]
	keep func(T) bool
}

func (s *filterSource[T]) Next() bool {
	for s.Source.Next() {
		if s.keep(s.Source.Row()) {
			return true
		}
	}
	return false
}

// Cursor iterates over query results.
//
// Rows are read lazily from the database. Iteration ends when Next returns
// false; call Err to distinguish exhaustion from failure. Discard stops early
// and releases the statement; it is safe to call more than once.
type Cursor[T Record] struct {
	src   best.Source[T]
	rows  *sql.Rows
	limit int

	count int
	cur   T
	err   error
	done  bool
}

func newCursor[T Record](src best.Source[T], rows *sql.Rows, limit int) *Cursor[T] {
	return &Cursor[T]{src: src, rows: rows, limit: limit}
}

// Next advances to the next row.
func (c *Cursor[T]) Next() bool {
	if c.done {
		return false
	}
	if c.limit > 0 && c.count >= c.limit {
		c.close()
		return false
	}
	if !c.src.Next() {
		c.close()
		return false
	}
	c.cur = c.src.Row()
	c.count++
	return true
}

// Row returns the current row.
func (c *Cursor[T]) Row() T { return c.cur }

// Get returns a field of the current row.
func (c *Cursor[T]) Get(key query.Key) (string, bool) { return c.cur.Get(key) }

// Count returns the number of rows returned so far.
func (c *Cursor[T]) Count() int { return c.count }

// Err returns the error that ended iteration, if any.
func (c *Cursor[T]) Err() error {
	if c.done {
		return c.err
	}
	return c.src.Err()
}

// Discard stops iteration and releases the underlying statement.
func (c *Cursor[T]) Discard() {
	c.close()
}

// All reads the remaining rows.
func (c *Cursor[T]) All() ([]T, error) {
	var out []T
	for c.Next() {
		out = append(out, c.Row())
	}
	return out, c.Err()
}

func (c *Cursor[T]) close() {
	if c.done {
		return
	}
	c.done = true
	c.err = c.src.Err()
	if err := c.rows.Close(); err != nil && c.err == nil {
		c.err = dberrors.Backend("", err)
	}
}
