// Package migrations embeds the archive schema migrations into the binary.
//
// Each supported backend has its own directory of
// YYYYMMDD_HHMMSS_description.{up,down}.sql files. The database package
// receives the directory for the configured backend as an fs.FS, so the
// schema is applied without the SQL files being present on disk.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

//go:embed sqlite/*.sql postgres/*.sql duckdb/*.sql mysql/*.sql
var migrationsFS embed.FS

// FS returns the migration files for a backend, rooted at its directory.
//
// Parameters:
//   - name: Backend name as accepted by backend.LookupDialect
//
// Returns:
//   - fs.FS: Filesystem containing the backend's .sql files
//   - error: dberrors.ErrUnimplemented for unknown backends
func FS(name string) (fs.FS, error) {
	dialect, err := backend.LookupDialect(name)
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(migrationsFS, dialect.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: no migrations for %s", dberrors.ErrUnimplemented, dialect.Name())
	}
	return sub, nil
}
