package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql; the
// first two underscore-separated parts form the version.
const (
	filenameParts = 3
	versionParts  = 2
)

// Migration is one schema step of a backend.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string // empty when the step cannot be reverted
}

// AppliedMigration is a row of schema_migrations. Name is empty when the
// migration directory no longer holds the version.
type AppliedMigration struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// MigrationStatus compares schema_migrations with a migration directory.
type MigrationStatus struct {
	Applied []AppliedMigration // oldest first
	Pending []Migration        // in the order Migrate would apply them
}

// Migrate applies every pending migration of fsys, oldest first. Each
// migration commits on its own, so after a failure the earlier ones stay
// applied and a later call resumes from the one that failed.
//
// A nil fsys holds no migrations.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	status, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		insert := db.dialect.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)")
		err := db.runMigration(ctx, m.Up, insert, m.Version, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the most recently applied migration and returns it.
// It returns a zero Migration when nothing is applied.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) (Migration, error) {
	status, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return Migration{}, err
	}
	if len(status.Applied) == 0 {
		return Migration{}, nil
	}
	latest := status.Applied[len(status.Applied)-1].Version

	known, err := loadMigrations(fsys)
	if err != nil {
		return Migration{}, fmt.Errorf("loading migrations: %w", err)
	}
	i := sort.Search(len(known), func(i int) bool { return known[i].Version >= latest })
	if i == len(known) || known[i].Version != latest {
		return Migration{}, fmt.Errorf("migration %s not found in filesystem", latest)
	}
	m := known[i]
	if m.Down == "" {
		return Migration{}, fmt.Errorf("migration %s has no down SQL", latest)
	}

	del := db.dialect.Rebind("DELETE FROM schema_migrations WHERE version = ?")
	if err := db.runMigration(ctx, m.Down, del, m.Version); err != nil {
		return Migration{}, fmt.Errorf("reverting migration %s (%s): %w", m.Version, m.Name, err)
	}
	return m, nil
}

// MigrationStatus lists the applied migrations and those of fsys still to
// apply. It creates schema_migrations on a fresh database.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	known, err := loadMigrations(fsys)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("loading migrations: %w", err)
	}

	names := make(map[string]string, len(known))
	for _, m := range known {
		names[m.Version] = m.Name
	}
	done := make(map[string]bool, len(applied))
	for i, a := range applied {
		done[a.Version] = true
		applied[i].Name = names[a.Version]
	}

	status := MigrationStatus{Applied: applied}
	for _, m := range known {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // Written by Migrate
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return out, nil
}

// runMigration executes script and the bookkeeping statement in one
// transaction.
func (db *DB) runMigration(ctx context.Context, script, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := execScript(ctx, tx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("updating schema_migrations: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads the migrations at the root of fsys, sorted by
// version. Files that do not follow the naming scheme are ignored, as is a
// down file without its up file.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, nil //nolint:nilerr // A missing directory holds no migrations
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		version, isUp, ok := parseMigrationFilename(name)
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if !isUp {
			downs[version] = string(body)
			continue
		}
		byVersion[version] = &Migration{Version: version, Name: extractMigrationName(name), Up: string(body)}
	}

	out := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		m.Down = downs[version]
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFilename returns the version of a migration file and
// whether it is the up direction.
func parseMigrationFilename(name string) (version string, isUp, ok bool) {
	base, found := strings.CutSuffix(name, ".sql")
	if !found {
		return "", false, false
	}
	if b, up := strings.CutSuffix(base, ".up"); up {
		base, isUp = b, true
	} else if b, down := strings.CutSuffix(base, ".down"); down {
		base = b
	} else {
		return "", false, false
	}

	parts := strings.SplitN(base, "_", filenameParts)
	if len(parts) < versionParts {
		return "", false, false
	}
	return parts[0] + "_" + parts[1], isUp, true
}

// extractMigrationName returns the description part of a migration file,
// e.g. "initial_schema" for 20260118_120000_initial_schema.up.sql.
func extractMigrationName(filename string) string {
	base := strings.TrimSuffix(filename, ".sql")
	base = strings.TrimSuffix(base, ".up")
	base = strings.TrimSuffix(base, ".down")

	if parts := strings.SplitN(base, "_", filenameParts); len(parts) == filenameParts {
		return parts[versionParts]
	}
	return base
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execScript runs a migration script one statement at a time. Not every
// driver accepts several statements in a single Exec.
func execScript(ctx context.Context, tx execer, script string) error {
	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a script on semicolons that end a line, dropping
// "--" comment lines. Migration files must not put ";" at the end of a line
// inside a string literal.
func splitStatements(script string) []string {
	var stmts []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			stmts = append(stmts, strings.TrimSuffix(stmt, ";"))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
