package migrations

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

func TestFS(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "duckdb", "mysql"} {
		t.Run(name, func(t *testing.T) {
			fsys, err := FS(name)
			if err != nil {
				t.Fatalf("FS(%q) error = %v", name, err)
			}
			ups, err := fs.Glob(fsys, "*.up.sql")
			if err != nil {
				t.Fatalf("Glob() error = %v", err)
			}
			if len(ups) == 0 {
				t.Errorf("FS(%q) has no up migrations", name)
			}
		})
	}

	if _, err := FS("odbc"); !errors.Is(err, dberrors.ErrUnimplemented) {
		t.Errorf("FS(odbc) error = %v, want ErrUnimplemented", err)
	}
}
