package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nerrad567/obsarchive/internal/infrastructure/config"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
	"github.com/nerrad567/obsarchive/migrations"
)

// errMigrateUsage is returned for an unknown migrate action.
var errMigrateUsage = errors.New("usage: obsarchive migrate status|up|down")

// runMigrate manages the archive schema of the configured database without
// starting the service:
//
//	obsarchive migrate status   list applied and pending migrations
//	obsarchive migrate up       apply pending migrations
//	obsarchive migrate down     revert the latest migration
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errMigrateUsage
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.DatabaseConfig())
	if err != nil {
		return fmt.Errorf("opening archive database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly command

	fsys, err := migrations.FS(db.Dialect().Name())
	if err != nil {
		return err
	}

	switch args[0] {
	case "status":
		status, err := db.MigrationStatus(ctx, fsys)
		if err != nil {
			return err
		}
		return printMigrationStatus(out, status)
	case "up":
		if err := db.Migrate(ctx, fsys); err != nil {
			return err
		}
		fmt.Fprintln(out, "archive schema is up to date") //nolint:errcheck // CLI output
		return nil
	case "down":
		m, err := db.MigrateDown(ctx, fsys)
		if err != nil {
			return err
		}
		if m.Version == "" {
			fmt.Fprintln(out, "no migration to revert") //nolint:errcheck // CLI output
			return nil
		}
		fmt.Fprintf(out, "reverted %s %s\n", m.Version, m.Name) //nolint:errcheck // CLI output
		return nil
	default:
		return errMigrateUsage
	}
}

func printMigrationStatus(out io.Writer, status database.MigrationStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED") //nolint:errcheck // Flushed below
	for _, a := range status.Applied {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Version, a.Name, a.AppliedAt.Format(time.RFC3339)) //nolint:errcheck // Flushed below
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s\t%s\tpending\n", m.Version, m.Name) //nolint:errcheck // Flushed below
	}
	return w.Flush()
}
