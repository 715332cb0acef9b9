package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
)

const (
	selectStationSQL = `SELECT id FROM station WHERE rep = ? AND lat = ? AND lon = ? AND ident = ?`
	insertStationSQL = `INSERT INTO station (rep, lat, lon, ident) VALUES (?, ?, ?, ?)`

	// defaultChunkSize is the number of rows per multi-row INSERT.
	defaultChunkSize = 200
)

// ReportResolver maps report mnemonics to repinfo ids.
type ReportResolver interface {
	// ReportID returns the repinfo id of memo, creating the report when
	// create is true. Unknown reports with create false are
	// dberrors.ErrNotFound.
	ReportID(ctx context.Context, conn *backend.Conn, memo string, create bool) (int64, error)
}

// Options tune a Batch.
type Options struct {
	// WithAttributes stores attribute blobs. When false, inserted values
	// have no attributes and updates leave stored attributes untouched.
	WithAttributes bool

	// ChunkSize is the number of rows per multi-row INSERT. Zero uses a default.
	ChunkSize int
}

// Stats counts rows written by Flush.
type Stats struct {
	Stations int
	Inserted int
	Updated  int
}

type stationKey struct {
	report string
	coords Coords
	ident  string
}

// Batch is the write state of one transaction.
type Batch struct {
	conn    *backend.Conn
	reports ReportResolver
	opts    Options

	stations map[stationKey]*Station
	order    []*Station
	stats    Stats
}

// New returns an empty batch writing through conn.
func New(conn *backend.Conn, reports ReportResolver, opts Options) *Batch {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	return &Batch{
		conn:     conn,
		reports:  reports,
		opts:     opts,
		stations: make(map[stationKey]*Station),
	}
}

// Stats returns the rows written by all flushes so far.
func (b *Batch) Stats() Stats { return b.stats }

// GetStation returns the station identified by (report, coords, ident).
//
// A station seen earlier in the batch is returned from the cache. Otherwise
// storage is queried once; a station that does not exist is returned as a
// new station (its id is assigned at Flush) when create is true, and is
// dberrors.ErrNotFound otherwise. An empty ident means a fixed station.
func (b *Batch) GetStation(ctx context.Context, report string, coords Coords, ident string, create bool) (*Station, error) {
	coords.Lon = NormalizeLon(coords.Lon)
	key := stationKey{report: report, coords: coords, ident: ident}
	if st, ok := b.stations[key]; ok {
		return st, nil
	}

	if err := coords.Validate(); err != nil {
		return nil, err
	}

	repID, err := b.reports.ReportID(ctx, b.conn, report, create)
	if err != nil {
		return nil, err
	}

	st := &Station{
		batch:    b,
		Report:   report,
		RepID:    repID,
		Coords:   coords,
		Ident:    ident,
		measured: make(map[time.Time]*MeasuredData),
	}

	err = b.conn.QueryRow(ctx, selectStationSQL, repID, coords.Lat, coords.Lon, ident).Scan(&st.ID)
	switch {
	case err == nil:
	case dberrors.IsNotFound(err):
		if !create {
			return nil, fmt.Errorf("%w: station %s %s %q", dberrors.ErrNotFound, report, coords, ident)
		}
		st.IsNew = true
	default:
		return nil, err
	}

	b.stations[key] = st
	b.order = append(b.order, st)
	return st, nil
}

// Flush writes every queued change.
//
// New stations are inserted first. Any error leaves the batch in an
// undefined state; the owning transaction must be rolled back.
func (b *Batch) Flush(ctx context.Context) error {
	for _, st := range b.order {
		if err := st.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Clear forgets every cached station and queued change.
func (b *Batch) Clear() {
	b.stations = make(map[stationKey]*Station)
	b.order = nil
}

// attrsArg returns the attrs column argument for a blob.
func (b *Batch) attrsArg(blob []byte) any {
	if !b.opts.WithAttributes || len(blob) == 0 {
		return nil
	}
	return blob
}

// Station is a station handle cached by a Batch.
type Station struct {
	batch *Batch

	// ID is the station id; zero while IsNew.
	ID     int64
	Report string
	RepID  int64
	Coords Coords
	Ident  string

	// IsNew is true until the station has been inserted by Flush.
	IsNew bool

	stationData *StationData
	measured    map[time.Time]*MeasuredData
	dtOrder     []time.Time
}

// StationData returns the station metadata writer.
func (st *Station) StationData(ctx context.Context) (*StationData, error) {
	if st.stationData == nil {
		sd := &StationData{station: st, queue: newValueQueue()}
		if !st.IsNew {
			if err := sd.load(ctx); err != nil {
				return nil, err
			}
		}
		st.stationData = sd
	}
	return st.stationData, nil
}

// MeasuredData returns the writer for the values observed at datetime.
// Datetimes are truncated to the second and converted to UTC.
func (st *Station) MeasuredData(ctx context.Context, datetime time.Time) (*MeasuredData, error) {
	dt := datetime.UTC().Truncate(time.Second)
	if md, ok := st.measured[dt]; ok {
		return md, nil
	}

	md := &MeasuredData{station: st, datetime: dt, queue: newValueQueue()}
	if !st.IsNew {
		if err := md.load(ctx); err != nil {
			return nil, err
		}
	}
	st.measured[dt] = md
	st.dtOrder = append(st.dtOrder, dt)
	return md, nil
}

func (st *Station) flush(ctx context.Context) error {
	b := st.batch
	if st.IsNew {
		if err := st.insert(ctx); err != nil {
			return err
		}
		b.stats.Stations++
	}

	if st.stationData != nil {
		if err := st.stationData.flush(ctx); err != nil {
			return err
		}
	}
	for _, dt := range st.dtOrder {
		if err := st.measured[dt].flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// insert writes a new station. A unique violation means a concurrent
// writer created the same station; its id is read back instead.
func (st *Station) insert(ctx context.Context) error {
	conn := st.batch.conn
	id, err := conn.InsertID(ctx, insertStationSQL, st.RepID, st.Coords.Lat, st.Coords.Lon, st.Ident)
	if err != nil {
		if !conn.IsUniqueViolation(err) {
			return err
		}
		err = conn.QueryRow(ctx, selectStationSQL, st.RepID, st.Coords.Lat, st.Coords.Lon, st.Ident).Scan(&id)
		if err != nil {
			return err
		}
	}
	st.ID = id
	st.IsNew = false
	return nil
}
