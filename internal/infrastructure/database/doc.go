// Package database provides SQL connectivity for the observation archive.
//
// This package manages:
//   - Connections to SQLite, PostgreSQL, DuckDB or MySQL
//   - WAL mode and busy timeout for SQLite
//   - Schema migrations (additive-only, one directory per backend)
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - Embedded engines use a single connection, server engines a pool
//
// Usage:
//
//	db, err := database.Open(database.Config{Backend: "sqlite", Path: "data/archive.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	fsys, err := migrations.FS("sqlite")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := db.Migrate(ctx, fsys); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql
//   - MigrationStatus and MigrateDown back the "obsarchive migrate" command
//   - Scripts are split on line-ending semicolons and run statement by statement
package database
