package best

import (
	"errors"
	"math"
	"testing"
)

type row struct {
	event string
	memo  string
	prio  int
}

type sliceSource struct {
	rows []row
	pos  int
	err  error
}

func (s *sliceSource) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Row() row   { return s.rows[s.pos-1] }
func (s *sliceSource) Err() error { return s.err }

func collect(t *testing.T, rows []row) []row {
	t.Helper()
	sel := NewSelector[row, string](&sliceSource{rows: rows},
		func(r row) string { return r.event },
		func(r row) int { return r.prio })

	var got []row
	for sel.Next() {
		got = append(got, sel.Row())
	}
	if err := sel.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	return got
}

func TestSelectorHighestPriorityWins(t *testing.T) {
	got := collect(t, []row{
		{"t@12", "a", 10},
		{"t@12", "b", 30},
		{"t@12", "c", 20},
	})
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].memo != "b" {
		t.Errorf("selected %q, want b", got[0].memo)
	}
}

func TestSelectorTieKeepsFirst(t *testing.T) {
	got := collect(t, []row{
		{"t@12", "first", 50},
		{"t@12", "second", 50},
	})
	if len(got) != 1 || got[0].memo != "first" {
		t.Errorf("got %v, want the first row", got)
	}
}

func TestSelectorGroups(t *testing.T) {
	got := collect(t, []row{
		{"p@06", "synop", 101},
		{"t@06", "synop", 101},
		{"t@06", "temp", 400},
		{"t@12", "metar", 81},
		{"t@18", "synop", 101},
		{"t@18", "metar", 81},
	})

	want := []string{"p@06/synop", "t@06/temp", "t@12/metar", "t@18/synop"}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d: %v", len(got), len(want), got)
	}
	for i, r := range got {
		if id := r.event + "/" + r.memo; id != want[i] {
			t.Errorf("row %d = %s, want %s", i, id, want[i])
		}
	}
}

func TestSelectorEmpty(t *testing.T) {
	if got := collect(t, nil); len(got) != 0 {
		t.Errorf("got %v, want no rows", got)
	}
}

func TestSelectorPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	sel := NewSelector[row, string](&sliceSource{err: boom},
		func(r row) string { return r.event },
		func(r row) int { return r.prio })
	if sel.Next() {
		t.Fatal("Next() = true on a failed source")
	}
	if !errors.Is(sel.Err(), boom) {
		t.Errorf("Err() = %v, want boom", sel.Err())
	}
	if sel.Next() {
		t.Error("Next() = true after exhaustion")
	}
}

func TestPriorities(t *testing.T) {
	p := Priorities{"synop": 101, "temp": 400}
	if got := p.Of("temp"); got != 400 {
		t.Errorf("Of(temp) = %d, want 400", got)
	}
	if got := p.Of("unknown"); got != math.MinInt {
		t.Errorf("Of(unknown) = %d, want MinInt", got)
	}
}
