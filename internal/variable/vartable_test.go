package variable

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVartableResolve(t *testing.T) {
	table := DefaultVartable()

	tests := []struct {
		name string
		want string
	}{
		{"t", "B12101"},
		{"T", "B12101"},
		{"height", "B07030"},
		{"B13011", "B13011"},
	}
	for _, tt := range tests {
		code, err := table.Resolve(tt.name)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.name, err)
		}
		if code.String() != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.name, code, tt.want)
		}
	}

	if _, err := table.Resolve("nope"); err == nil {
		t.Error("Resolve(nope) expected error")
	}
}

func TestLoadVartable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vartable.yaml")
	content := `
variables:
  - code: B12102
    description: WET-BULB TEMPERATURE
    unit: K
    type: decimal
    scale: 2
aliases:
  tw: B12102
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	table, err := LoadVartable(path)
	if err != nil {
		t.Fatalf("LoadVartable() error = %v", err)
	}

	v, err := table.NewVar("tw", 275.5)
	if err != nil {
		t.Fatalf("NewVar(tw) error = %v", err)
	}
	if raw, _ := v.Int(); raw != 27550 {
		t.Errorf("tw raw = %d, want 27550", raw)
	}

	// Defaults are still present.
	if _, err := table.Resolve("t"); err != nil {
		t.Errorf("Resolve(t) error = %v", err)
	}
}

func TestParseVartableInvalid(t *testing.T) {
	tests := map[string]string{
		"bad code": "variables:\n  - code: Z1\n    type: integer\n",
		"bad type": "variables:\n  - code: B12102\n    type: complex\n",
		"bad yaml": "variables: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseVartable([]byte(content)); err == nil {
				t.Error("ParseVartable() expected error")
			}
		})
	}
}
