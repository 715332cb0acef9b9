// Package best reduces an ordered stream of measured values to one value
// per event, choosing the report with the highest priority.
//
// An event is a (coordinates, ident, datetime, level, time range, variable)
// tuple. The same event may be stored once per report; the selector relies
// on the input being ordered so that the rows of one event are adjacent.
package best

import "math"

// Source is an ordered row stream.
type Source[T any] interface {
	Next() bool
	Row() T
	Err() error
}

// Selector yields the highest-priority row of each group of adjacent rows
// sharing a key. When priorities tie, the first row seen wins.
type Selector[T any, K comparable] struct {
	src      Source[T]
	key      func(T) K
	priority func(T) int

	pending    T
	hasPending bool
	current    T
	done       bool
}

// NewSelector wraps src.
//
// Parameters:
//   - key: returns the event key of a row
//   - priority: returns the priority of the report that produced a row
func NewSelector[T any, K comparable](src Source[T], key func(T) K, priority func(T) int) *Selector[T, K] {
	return &Selector[T, K]{src: src, key: key, priority: priority}
}

// Next advances to the next event. It returns false when the source is
// exhausted or failed; check Err afterwards.
func (s *Selector[T, K]) Next() bool {
	if s.done {
		return false
	}
	if !s.hasPending {
		if !s.src.Next() {
			s.done = true
			return false
		}
		s.pending = s.src.Row()
	}

	best := s.pending
	bestKey := s.key(best)
	bestPrio := s.priority(best)
	s.hasPending = false

	for s.src.Next() {
		row := s.src.Row()
		if s.key(row) != bestKey {
			s.pending, s.hasPending = row, true
			break
		}
		if p := s.priority(row); p > bestPrio {
			best, bestPrio = row, p
		}
	}
	if !s.hasPending {
		s.done = true
	}
	s.current = best
	return true
}

// Row returns the row selected by the last call to Next.
func (s *Selector[T, K]) Row() T {
	return s.current
}

// Err returns the source error, if any.
func (s *Selector[T, K]) Err() error {
	return s.src.Err()
}

// Priorities maps report names to priorities.
type Priorities map[string]int

// Of returns the priority of a report. Unknown reports rank below every
// known one.
func (p Priorities) Of(memo string) int {
	prio, ok := p[memo]
	if !ok {
		return math.MinInt
	}
	return prio
}
