package query

import (
	"errors"
	"testing"

	"github.com/nerrad567/obsarchive/internal/variable"
)

func testAttrs(t *testing.T, values map[string]any) []variable.Var {
	t.Helper()
	table := variable.DefaultVartable()
	var holder variable.Var
	info, err := table.Query(variable.MustParseVarcode("B12101"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	holder = variable.New(info)
	for name, value := range values {
		a, err := table.NewVar(name, value)
		if err != nil {
			t.Fatalf("NewVar(%s) error = %v", name, err)
		}
		holder.SetAttr(a)
	}
	return holder.Attrs()
}

func TestAttrFilterMatch(t *testing.T) {
	attrs := testAttrs(t, map[string]any{"B33007": 70, "B33196": 0, "B01194": "qc"})

	tests := []struct {
		expr string
		want bool
	}{
		{"B33007>50", true},
		{"B33007>=70", true},
		{"B33007<70", false},
		{"B33007<=70", true},
		{"B33007=70", true},
		{"B33007!=70", false},
		{"B33007<>69", true},
		{"B33007>50,B33196=0", true},
		{"B33007>50,B33196=1", false},
		{"B33192>0", false},
		{"B01194=qc", true},
		{"B33007=high", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ParseAttrFilter(nil, tt.expr)
			if err != nil {
				t.Fatalf("ParseAttrFilter(%q) error = %v", tt.expr, err)
			}
			if got := f.Match(attrs); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttrFilterEmpty(t *testing.T) {
	f, err := ParseAttrFilter(nil, "  ")
	if err != nil {
		t.Fatalf("ParseAttrFilter() error = %v", err)
	}
	if f != nil {
		t.Fatalf("ParseAttrFilter() = %v, want nil", f)
	}
	if !f.Match(nil) {
		t.Error("nil filter Match() = false, want true")
	}
}

func TestAttrFilterInvalid(t *testing.T) {
	for _, expr := range []string{"B33007", ">50", "B33007>", "X99999=1"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseAttrFilter(nil, expr)
			if !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("ParseAttrFilter(%q) error = %v, want ErrInvalidFilter", expr, err)
			}
		})
	}
}
