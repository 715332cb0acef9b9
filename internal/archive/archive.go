package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/best"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
	"github.com/nerrad567/obsarchive/internal/variable"
	"github.com/nerrad567/obsarchive/migrations"
)

// Config holds everything needed to open an archive.
type Config struct {
	// Database selects and configures the storage backend.
	Database database.Config

	// Migrations overrides the embedded schema migrations of the backend.
	Migrations fs.FS

	// SkipMigrations opens the database without applying migrations.
	SkipMigrations bool

	// Vartable is the variable dictionary. Nil uses the built-in table.
	Vartable *variable.Vartable

	// StoreAttributes persists value attributes on insert and update.
	StoreAttributes bool

	// ChunkSize is the number of rows per multi-row INSERT.
	ChunkSize int

	// DefaultPriority is given to reports created on first use.
	DefaultPriority int

	// Reports are created or updated at open.
	Reports []Report

	// Logger receives archive events. Nil discards them.
	Logger Logger
}

// Archive is an open observation archive.
//
// All methods are safe for concurrent use. Transactions are not.
type Archive struct {
	db      *database.DB
	conn    *backend.Conn
	table   *variable.Vartable
	levtr   *levtr.Cache
	reports *reportCache
	opts    batch.Options
	defPrio int
	logger  Logger

	closeOnce sync.Once
}

// Open opens the database, applies the schema migrations and loads the
// levtr and report caches.
func Open(ctx context.Context, cfg Config) (*Archive, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	a, err := open(ctx, db, cfg)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}
	return a, nil
}

func open(ctx context.Context, db *database.DB, cfg Config) (*Archive, error) {
	if !cfg.SkipMigrations {
		fsys := cfg.Migrations
		if fsys == nil {
			var err error
			if fsys, err = migrations.FS(db.Dialect().Name()); err != nil {
				return nil, err
			}
		}
		if err := db.Migrate(ctx, fsys); err != nil {
			return nil, fmt.Errorf("migrating archive schema: %w", err)
		}
	}

	a := &Archive{
		db:      db,
		conn:    backend.NewConn(db.DB, db.Dialect()),
		table:   cfg.Vartable,
		levtr:   levtr.NewCache(),
		reports: newReportCache(),
		opts: batch.Options{
			WithAttributes: cfg.StoreAttributes,
			ChunkSize:      cfg.ChunkSize,
		},
		defPrio: cfg.DefaultPriority,
		logger:  cfg.Logger,
	}
	if a.table == nil {
		a.table = variable.DefaultVartable()
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}

	if err := a.levtr.Preload(ctx, a.conn); err != nil {
		return nil, fmt.Errorf("loading levtr cache: %w", err)
	}
	if err := a.reports.load(ctx, a.conn); err != nil {
		return nil, fmt.Errorf("loading reports: %w", err)
	}
	if len(cfg.Reports) > 0 {
		if err := a.SyncReports(ctx, cfg.Reports); err != nil {
			return nil, err
		}
	}

	a.logger.Info("archive opened",
		"backend", db.Dialect().Name(),
		"levtr", a.levtr.Len(),
		"reports", len(a.reports.list()),
	)
	return a, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.db.Close()
	})
	return err
}

// DB returns the underlying database handle.
func (a *Archive) DB() *database.DB { return a.db }

// Vartable returns the variable dictionary.
func (a *Archive) Vartable() *variable.Vartable { return a.table }

// Reports returns the report dictionary, highest priority first.
func (a *Archive) Reports() []Report { return a.reports.list() }

// Priorities returns a snapshot of the report priorities.
func (a *Archive) Priorities() best.Priorities { return a.reports.priorities() }

// HealthCheck verifies that the database answers.
func (a *Archive) HealthCheck(ctx context.Context) error { return a.db.HealthCheck(ctx) }

// SyncReports creates missing reports and updates the description and
// priority of existing ones, in one transaction.
func (a *Archive) SyncReports(ctx context.Context, reports []Report) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("syncing reports: %w", err)
	}
	conn := backend.NewConn(tx, a.db.Dialect())

	synced := make(map[string]Report, len(reports))
	for _, rep := range reports {
		if rep.Memo == "" {
			tx.Rollback() //nolint:errcheck // Already failing
			return fmt.Errorf("syncing reports: empty report name")
		}
		r, err := syncReport(ctx, conn, rep)
		if err != nil {
			tx.Rollback() //nolint:errcheck // Already failing
			return fmt.Errorf("syncing report %q: %w", rep.Memo, err)
		}
		synced[r.Memo] = r
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("syncing reports: %w", err)
	}

	a.reports.merge(synced)
	a.logger.Debug("reports synced", "count", len(synced))
	return nil
}

// Begin starts a transaction.
func (a *Archive) Begin(ctx context.Context) (*Transaction, error) {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Transaction{
		a:     a,
		tx:    sqlTx,
		conn:  backend.NewConn(sqlTx, a.db.Dialect()),
		levtr: levtr.NewCache(),
		reports: &txReports{
			shared:          a.reports,
			defaultPriority: a.defPrio,
		},
	}
	tx.batch = batch.New(tx.conn, tx.reports, a.opts)
	return tx, nil
}

// Update runs fn in a transaction, committing when fn succeeds and rolling
// back otherwise.
func (a *Archive) Update(ctx context.Context, fn func(tx *Transaction) error) error {
	tx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// InsertStationData inserts station values in their own transaction.
func (a *Archive) InsertStationData(ctx context.Context, vals *StationValues, opts InsertOptions) error {
	return a.Update(ctx, func(tx *Transaction) error {
		return tx.InsertStationData(ctx, vals, opts)
	})
}

// InsertData inserts measured values in their own transaction.
func (a *Archive) InsertData(ctx context.Context, vals *MeasuredValues, opts InsertOptions) error {
	return a.Update(ctx, func(tx *Transaction) error {
		return tx.InsertData(ctx, vals, opts)
	})
}

// RemoveData deletes the measured values matching q.
func (a *Archive) RemoveData(ctx context.Context, q *query.Query) (int64, error) {
	var n int64
	err := a.Update(ctx, func(tx *Transaction) error {
		var err error
		n, err = tx.RemoveData(ctx, q)
		return err
	})
	return n, err
}

// RemoveStationData deletes the station values matching q.
func (a *Archive) RemoveStationData(ctx context.Context, q *query.Query) (int64, error) {
	var n int64
	err := a.Update(ctx, func(tx *Transaction) error {
		var err error
		n, err = tx.RemoveStationData(ctx, q)
		return err
	})
	return n, err
}

// RemoveAll deletes every station and value. Reports are kept.
func (a *Archive) RemoveAll(ctx context.Context) error {
	return a.Update(ctx, func(tx *Transaction) error {
		return tx.RemoveAll(ctx)
	})
}

// Vacuum deletes stations without values and unused levtr rows.
func (a *Archive) Vacuum(ctx context.Context) (VacuumStats, error) {
	var stats VacuumStats
	err := a.Update(ctx, func(tx *Transaction) error {
		var err error
		stats, err = tx.Vacuum(ctx)
		return err
	})
	return stats, err
}

// AttrInsert merges attributes into a stored value.
func (a *Archive) AttrInsert(ctx context.Context, kind ValueKind, id int64, attrs []variable.Var) error {
	return a.Update(ctx, func(tx *Transaction) error {
		return tx.AttrInsert(ctx, kind, id, attrs)
	})
}

// AttrRemove deletes attributes of a stored value; no codes removes all.
func (a *Archive) AttrRemove(ctx context.Context, kind ValueKind, id int64, codes ...variable.Varcode) error {
	return a.Update(ctx, func(tx *Transaction) error {
		return tx.AttrRemove(ctx, kind, id, codes...)
	})
}

// AttrQuery returns the attributes of a stored value.
func (a *Archive) AttrQuery(ctx context.Context, kind ValueKind, id int64) ([]variable.Var, error) {
	return attrQuery(ctx, a.conn, a.table, kind, id)
}

// QueryStations runs a station query on the connection pool.
func (a *Archive) QueryStations(ctx context.Context, q *query.Query) (*Cursor[Station], error) {
	return a.queryStations(ctx, a.conn, a.levtr, q)
}

// QueryStationData runs a station value query on the connection pool.
func (a *Archive) QueryStationData(ctx context.Context, q *query.Query) (*Cursor[StationDatum], error) {
	return a.queryStationData(ctx, a.conn, a.levtr, q)
}

// QueryData runs a measured value query on the connection pool.
func (a *Archive) QueryData(ctx context.Context, q *query.Query) (*Cursor[Datum], error) {
	return a.queryData(ctx, a.conn, a.levtr, a.Priorities(), q)
}

// QuerySummary runs a summary query on the connection pool.
func (a *Archive) QuerySummary(ctx context.Context, q *query.Query) (*Cursor[SummaryEntry], error) {
	return a.querySummary(ctx, a.conn, a.levtr, q)
}

// isQueryError reports whether err was raised before any statement ran,
// leaving the transaction usable.
func isQueryError(err error) bool {
	return errors.Is(err, query.ErrInvalidQuery) ||
		errors.Is(err, query.ErrInvalidFilter) ||
		errors.Is(err, query.ErrInvalidValue)
}
