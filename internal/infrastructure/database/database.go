package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	_ "github.com/mattn/go-sqlite3"     // SQLite driver

	"github.com/nerrad567/obsarchive/internal/archive/backend"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultMaxOpenConns is the pool size for server backends.
	defaultMaxOpenConns = 10
)

// DB wraps a sql.DB connection with the dialect of its backend.
// Server backends share a pool; SQLite and DuckDB use one connection.
type DB struct {
	*sql.DB
	dialect backend.Dialect
}

// Config contains database configuration options.
// These map to the archive section of config.yaml.
type Config struct {
	// Backend selects the SQL engine: sqlite, postgres, duckdb or mysql.
	// Empty means sqlite.
	Backend string

	// Path is the filesystem path to the database file (sqlite, duckdb).
	// The directory will be created if it doesn't exist.
	Path string

	// DSN is the connection string for server backends (postgres, mysql).
	DSN string

	// WALMode enables Write-Ahead Logging for better concurrent access.
	// SQLite only. Recommended: true (allows concurrent reads during writes).
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// SQLite only. Prevents "database is locked" errors under contention.
	BusyTimeout int

	// MaxOpenConns bounds the pool for server backends. Zero uses a default.
	// SQLite and DuckDB always use a single connection.
	MaxOpenConns int
}

// Open connects to the archive database of cfg.Backend (sqlite when
// empty) and pings it. File backends get their directory created; SQLite
// also gets the busy timeout, foreign keys and optionally WAL.
func Open(cfg Config) (*DB, error) {
	name := cfg.Backend
	if name == "" {
		name = backend.SQLite
	}
	dialect, err := backend.LookupDialect(name)
	if err != nil {
		return nil, err
	}

	connStr, err := connectionString(dialect, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(dialect.DriverName(), connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	switch dialect.Name() {
	case backend.SQLite, backend.DuckDB:
		// Embedded engines work best with a single writer
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	default:
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = defaultMaxOpenConns
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
	}
	sqlDB.SetConnMaxLifetime(time.Hour) // Refresh connections hourly
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{
		DB:      sqlDB,
		dialect: dialect,
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if cfg.Path != "" && dialect.Name() != backend.Postgres && dialect.Name() != backend.MySQL {
		// Ignore error - file might not exist yet on first run, will be set after first write
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later
	}

	return db, nil
}

// connectionString builds the driver DSN for a backend.
func connectionString(dialect backend.Dialect, cfg Config) (string, error) {
	switch dialect.Name() {
	case backend.SQLite:
		if cfg.Path == "" {
			return "", fmt.Errorf("sqlite backend requires a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return "", fmt.Errorf("creating database directory: %w", err)
		}

		// Build connection string with pragmas
		// See: https://github.com/mattn/go-sqlite3#connection-string
		connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
			cfg.Path,
			cfg.BusyTimeout*msPerSecond,
		)
		if cfg.WALMode {
			connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
		}
		return connStr, nil

	case backend.DuckDB:
		// An empty path opens an in-memory database
		if cfg.Path != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
				return "", fmt.Errorf("creating database directory: %w", err)
			}
		}
		return cfg.Path, nil

	default:
		if cfg.DSN == "" {
			return "", fmt.Errorf("%s backend requires a dsn", dialect.Name())
		}
		return cfg.DSN, nil
	}
}

// Close closes the pool.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Dialect returns the statement dialect of the backend.
func (db *DB) Dialect() backend.Dialect {
	return db.dialect
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ExecContext executes a statement written with ? placeholders, rebound
// for the backend.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, db.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction. Statements run on the returned *sql.Tx
// are not rebound; archive code wraps it in a backend.Conn for that.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
