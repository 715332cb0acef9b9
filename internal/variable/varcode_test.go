package variable

import (
	"errors"
	"testing"
)

func TestParseVarcode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "B12101", want: "B12101"},
		{in: "b12101", want: "B12101"},
		{in: "012101", want: "B12101"},
		{in: "D01001", want: "D01001"},
		{in: "B33196", want: "B33196"},
		{in: "B1210", wantErr: true},
		{in: "X12101", wantErr: true},
		{in: "B64001", wantErr: true},
		{in: "B12999", wantErr: true},
		{in: "B1a101", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVarcode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVarcode) {
					t.Fatalf("ParseVarcode(%q) error = %v, want ErrInvalidVarcode", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVarcode(%q) error = %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseVarcode(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestVarcodeParts(t *testing.T) {
	c := NewVarcode(0, 12, 101)
	if c.F() != 0 || c.X() != 12 || c.Y() != 101 {
		t.Errorf("parts = %d,%d,%d, want 0,12,101", c.F(), c.X(), c.Y())
	}
	if c != MustParseVarcode("B12101") {
		t.Errorf("NewVarcode(0, 12, 101) = %v, want B12101", c)
	}
}
