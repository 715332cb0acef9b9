package query

import (
	"reflect"
	"testing"
)

func TestWhereBuilderEmpty(t *testing.T) {
	wb := NewWhereBuilder()
	clause, args := wb.Build()
	if clause != "1=1" || args != nil {
		t.Errorf("Build() = %q, %v, want \"1=1\", nil", clause, args)
	}
	if !wb.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
}

func TestWhereBuilderClauses(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddClause("r.memo = ?", "synop").
		AddIn("d.code", []any{3173, 3175}).
		AddIn("d.code", nil)

	clause, args := wb.Build()
	if want := "r.memo = ? AND d.code IN (?, ?)"; clause != want {
		t.Errorf("Build() clause = %q, want %q", clause, want)
	}
	if want := []any{"synop", 3173, 3175}; !reflect.DeepEqual(args, want) {
		t.Errorf("Build() args = %v, want %v", args, want)
	}
	if wb.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
}

func TestWhereBuilderNested(t *testing.T) {
	sub := NewWhereBuilder().AddClause("d.id_station = s.id").AddClause("d.code = ?", 3173)
	wb := NewWhereBuilder().AddClause("s.id > ?", 1).AddNested("EXISTS (SELECT 1 FROM data d WHERE %s)", sub)

	clause, args := wb.Build()
	want := "s.id > ? AND EXISTS (SELECT 1 FROM data d WHERE d.id_station = s.id AND d.code = ?)"
	if clause != want {
		t.Errorf("Build() clause = %q, want %q", clause, want)
	}
	if !reflect.DeepEqual(args, []any{1, 3173}) {
		t.Errorf("Build() args = %v", args)
	}
}
