package batch

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/codec"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
	"github.com/nerrad567/obsarchive/internal/variable"
	"github.com/nerrad567/obsarchive/migrations"
)

// countingQuerier counts station lookups.
type countingQuerier struct {
	backend.Querier
	stationLookups int
}

func (q *countingQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if strings.HasPrefix(query, "SELECT id FROM station ") {
		q.stationLookups++
	}
	return q.Querier.QueryRowContext(ctx, query, args...)
}

// testReports resolves reports directly against repinfo.
type testReports struct{}

func (testReports) ReportID(ctx context.Context, conn *backend.Conn, memo string, create bool) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx, "SELECT id FROM repinfo WHERE memo = ?", memo).Scan(&id)
	if err == nil || !dberrors.IsNotFound(err) || !create {
		return id, err
	}
	return conn.InsertID(ctx, "INSERT INTO repinfo (memo, description, prio) VALUES (?, ?, ?)", memo, memo, 0)
}

type testEnv struct {
	db       *database.DB
	conn     *backend.Conn
	counter  *countingQuerier
	table    *variable.Vartable
	levtrs   *levtr.Cache
	synopPos Coords
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	fsys, err := migrations.FS("sqlite")
	if err != nil {
		t.Fatalf("migrations.FS() error = %v", err)
	}
	if err := db.Migrate(context.Background(), fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	counter := &countingQuerier{Querier: db.DB}
	return &testEnv{
		db:       db,
		conn:     backend.NewConn(counter, db.Dialect()),
		counter:  counter,
		table:    variable.DefaultVartable(),
		levtrs:   levtr.NewCache(),
		synopPos: NewCoords(45.0, 11.0),
	}
}

func (e *testEnv) newVar(t *testing.T, name string, value any) variable.Var {
	t.Helper()
	v, err := e.table.NewVar(name, value)
	if err != nil {
		t.Fatalf("NewVar(%s) error = %v", name, err)
	}
	return v
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := e.db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	return n
}

func TestGetStationCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{})

	st1, err := b.GetStation(ctx, "synop", env.synopPos, "", true)
	if err != nil {
		t.Fatalf("GetStation() error = %v", err)
	}
	st2, err := b.GetStation(ctx, "synop", NewCoords(45.0, 11.0), "", true)
	if err != nil {
		t.Fatalf("GetStation() error = %v", err)
	}

	if st1 != st2 {
		t.Error("GetStation() returned different handles for the same station")
	}
	if env.counter.stationLookups != 1 {
		t.Errorf("station lookups = %d, want 1", env.counter.stationLookups)
	}
	if !st1.IsNew || st1.ID != 0 {
		t.Errorf("new station: IsNew = %v, ID = %d", st1.IsNew, st1.ID)
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if st1.IsNew || st1.ID == 0 {
		t.Errorf("after Flush: IsNew = %v, ID = %d", st1.IsNew, st1.ID)
	}

	// A fresh batch finds the stored station with one lookup.
	b2 := New(env.conn, testReports{}, Options{})
	st3, err := b2.GetStation(ctx, "synop", env.synopPos, "", false)
	if err != nil {
		t.Fatalf("GetStation() error = %v", err)
	}
	if st3.ID != st1.ID || st3.IsNew {
		t.Errorf("stored station: ID = %d, IsNew = %v, want ID %d", st3.ID, st3.IsNew, st1.ID)
	}
	if env.counter.stationLookups != 2 {
		t.Errorf("station lookups = %d, want 2", env.counter.stationLookups)
	}
}

func TestGetStationNoCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{})

	// Create the report so that only the station is missing.
	if _, err := (testReports{}).ReportID(ctx, env.conn, "synop", true); err != nil {
		t.Fatalf("ReportID() error = %v", err)
	}

	_, err := b.GetStation(ctx, "synop", env.synopPos, "", false)
	if !errors.Is(err, dberrors.ErrNotFound) {
		t.Errorf("GetStation(create=false) error = %v, want ErrNotFound", err)
	}

	_, err = b.GetStation(ctx, "synop", NewCoords(95, 0), "", true)
	if !errors.Is(err, dberrors.ErrConsistency) {
		t.Errorf("GetStation(lat=95) error = %v, want ErrConsistency", err)
	}
}

func TestMobileStationsAreDistinct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{})

	for _, ident := range []string{"", "EIKL", "D-ABCD"} {
		if _, err := b.GetStation(ctx, "airep", env.synopPos, ident, true); err != nil {
			t.Fatalf("GetStation(%q) error = %v", ident, err)
		}
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n := env.count(t, "SELECT COUNT(*) FROM station"); n != 3 {
		t.Errorf("stations = %d, want 3", n)
	}
	if b.Stats().Stations != 3 {
		t.Errorf("Stats().Stations = %d, want 3", b.Stats().Stations)
	}
}

func TestStationDataDedup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{})

	st, err := b.GetStation(ctx, "synop", env.synopPos, "", true)
	if err != nil {
		t.Fatalf("GetStation() error = %v", err)
	}
	sd, err := st.StationData(ctx)
	if err != nil {
		t.Fatalf("StationData() error = %v", err)
	}

	if err := sd.Add(env.newVar(t, "B07030", 1000), PolicyError); err != nil {
		t.Fatalf("Add(1000) error = %v", err)
	}
	if err := sd.Add(env.newVar(t, "B07030", 1001), PolicyError); err != nil {
		t.Fatalf("Add(1001) error = %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if n := env.count(t, "SELECT COUNT(*) FROM station_data"); n != 1 {
		t.Fatalf("station_data rows = %d, want 1", n)
	}
	var value string
	if err := env.db.QueryRowContext(ctx, "SELECT value FROM station_data").Scan(&value); err != nil {
		t.Fatalf("select value: %v", err)
	}
	// B07030 has scale 1: 1001 m is stored as 10010.
	if value != "10010" {
		t.Errorf("stored value = %q, want 10010", value)
	}

	if _, ok := sd.ID(variable.MustParseVarcode("B07030")); !ok {
		t.Error("ID(B07030) not cached after flush")
	}
}

func TestConflictPolicies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := New(env.conn, testReports{}, Options{})
	st, _ := b.GetStation(ctx, "synop", env.synopPos, "", true)
	sd, _ := st.StationData(ctx)
	if err := sd.Add(env.newVar(t, "height", 1000), PolicyError); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	stored := func() string {
		var v string
		if err := env.db.QueryRowContext(ctx, "SELECT value FROM station_data").Scan(&v); err != nil {
			t.Fatalf("select value: %v", err)
		}
		return v
	}

	tests := []struct {
		policy    Policy
		wantErr   error
		wantValue string
	}{
		{PolicyError, dberrors.ErrDuplicate, "10000"},
		{PolicyIgnore, nil, "10000"},
		{PolicyUpdate, nil, "10010"},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			b := New(env.conn, testReports{}, Options{})
			st, err := b.GetStation(ctx, "synop", env.synopPos, "", false)
			if err != nil {
				t.Fatalf("GetStation() error = %v", err)
			}
			sd, err := st.StationData(ctx)
			if err != nil {
				t.Fatalf("StationData() error = %v", err)
			}

			err = sd.Add(env.newVar(t, "height", 1001), tt.policy)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !dberrors.IsConsistency(err) {
					t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			if err := b.Flush(ctx); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}
			if got := stored(); got != tt.wantValue {
				t.Errorf("stored value = %q, want %q", got, tt.wantValue)
			}
		})
	}
}

func TestMeasuredDataChunks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{ChunkSize: 2})

	st, err := b.GetStation(ctx, "synop", env.synopPos, "", true)
	if err != nil {
		t.Fatalf("GetStation() error = %v", err)
	}
	dt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	md, err := st.MeasuredData(ctx, dt)
	if err != nil {
		t.Fatalf("MeasuredData() error = %v", err)
	}

	surface, err := env.levtrs.ObtainID(ctx, env.conn, levtr.NewLevel(103, 2000), levtr.Trange{Pind: 254})
	if err != nil {
		t.Fatalf("ObtainID() error = %v", err)
	}
	ground, err := env.levtrs.ObtainID(ctx, env.conn, levtr.NewLevel(1, levtr.Missing), levtr.Trange{Pind: 1, P1: -3600, P2: 3600})
	if err != nil {
		t.Fatalf("ObtainID() error = %v", err)
	}

	values := []struct {
		levtr int64
		name  string
		value any
	}{
		{surface, "t", 280.15},
		{surface, "td", 275.0},
		{surface, "rh", 70},
		{ground, "tp", 1.2},
		{surface, "t", 281.15}, // replaces the first temperature
	}
	for _, v := range values {
		if err := md.Add(v.levtr, env.newVar(t, v.name, v.value), PolicyError); err != nil {
			t.Fatalf("Add(%s) error = %v", v.name, err)
		}
	}

	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if n := env.count(t, "SELECT COUNT(*) FROM data"); n != 4 {
		t.Errorf("data rows = %d, want 4", n)
	}
	if b.Stats().Inserted != 4 {
		t.Errorf("Stats().Inserted = %d, want 4", b.Stats().Inserted)
	}

	id, ok := md.ID(surface, variable.MustParseVarcode("B12101"))
	if !ok {
		t.Fatal("ID(B12101) not cached after flush")
	}
	var value string
	if err := env.db.QueryRowContext(ctx, "SELECT value FROM data WHERE id = ?", id).Scan(&value); err != nil {
		t.Fatalf("select value: %v", err)
	}
	if value != "28115" {
		t.Errorf("B12101 = %q, want 28115", value)
	}

	// A second batch sees the stored values and updates one of them.
	b2 := New(env.conn, testReports{}, Options{})
	st2, _ := b2.GetStation(ctx, "synop", env.synopPos, "", false)
	md2, err := st2.MeasuredData(ctx, dt)
	if err != nil {
		t.Fatalf("MeasuredData() error = %v", err)
	}
	if err := md2.Add(surface, env.newVar(t, "rh", 71), PolicyError); !dberrors.IsDuplicate(err) {
		t.Errorf("Add(existing, PolicyError) error = %v, want ErrDuplicate", err)
	}
	if err := md2.Add(surface, env.newVar(t, "rh", 72), PolicyUpdate); err != nil {
		t.Fatalf("Add(existing, PolicyUpdate) error = %v", err)
	}
	if err := b2.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b2.Stats().Updated != 1 {
		t.Errorf("Stats().Updated = %d, want 1", b2.Stats().Updated)
	}
}

func TestAttributesStored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, withAttrs := range []bool{true, false} {
		b := New(env.conn, testReports{}, Options{WithAttributes: withAttrs})
		ident := "attrs"
		if !withAttrs {
			ident = "noattrs"
		}
		st, _ := b.GetStation(ctx, "ship", env.synopPos, ident, true)
		sd, _ := st.StationData(ctx)

		v := env.newVar(t, "height", 10)
		v.SetAttr(env.newVar(t, "B33007", 90))
		if err := sd.Add(v, PolicyError); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if err := b.Flush(ctx); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		var blob []byte
		err := env.db.QueryRowContext(ctx,
			"SELECT attrs FROM station_data WHERE id_station = ?", st.ID).Scan(&blob)
		if err != nil {
			t.Fatalf("select attrs: %v", err)
		}

		if !withAttrs {
			if blob != nil {
				t.Errorf("attrs stored with WithAttributes=false: % x", blob)
			}
			continue
		}
		attrs, err := codec.Decode(env.table, blob)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if len(attrs) != 1 || attrs[0].Code() != variable.MustParseVarcode("B33007") {
			t.Errorf("decoded attrs = %v", attrs)
		}
	}
}

func TestAddUnset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b := New(env.conn, testReports{}, Options{})

	st, _ := b.GetStation(ctx, "synop", env.synopPos, "", true)
	sd, _ := st.StationData(ctx)

	info, _ := env.table.Query(variable.MustParseVarcode("B07030"))
	if err := sd.Add(variable.New(info), PolicyError); !errors.Is(err, dberrors.ErrConsistency) {
		t.Errorf("Add(unset) error = %v, want ErrConsistency", err)
	}
}

func TestNormalizeLon(t *testing.T) {
	tests := []struct {
		in, want int32
	}{
		{0, 0},
		{18000000, -18000000},
		{-18000000, -18000000},
		{19000000, -17000000},
		{-19000000, 17000000},
		{36000000, 0},
	}
	for _, tt := range tests {
		if got := NormalizeLon(tt.in); got != tt.want {
			t.Errorf("NormalizeLon(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewCoords(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     Coords
	}{
		{"plain", 45, 11, Coords{Lat: 4500000, Lon: 1100000}},
		{"wraps east", 0, 190, Coords{Lon: -17000000}},
		{"antimeridian", 0, 180, Coords{Lon: -18000000}},
		{"many turns", 0, 21475*360.0 + 11, Coords{Lon: 1100000}},
		{"beyond int32 east", 0, 30000, Coords{Lon: 12000000}},
		{"beyond int32 west", 0, -30000, Coords{Lon: -12000000}},
		{"latitude saturates", 50000, 0, Coords{Lat: math.MaxInt32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewCoords(tt.lat, tt.lon); got != tt.want {
				t.Errorf("NewCoords(%v, %v) = %+v, want %+v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}

	if err := NewCoords(50000, 0).Validate(); !errors.Is(err, dberrors.ErrConsistency) {
		t.Errorf("Validate() of a saturated latitude error = %v, want ErrConsistency", err)
	}
}

func TestParseCoords(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"valid", 44.5, 11.33333, false},
		{"lon wraps", 0, 350, false},
		{"lat too large", 91, 0, true},
		{"lon too large", 0, 360.5, true},
		{"lon far out", 0, 30000, true},
		{"lat nan", math.NaN(), 0, true},
		{"lon inf", 0, math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCoords(tt.lat, tt.lon)
			if tt.wantErr {
				if !errors.Is(err, dberrors.ErrConsistency) {
					t.Errorf("ParseCoords() error = %v, want ErrConsistency", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseCoords() error = %v", err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicyError, PolicyIgnore, PolicyUpdate} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("merge"); err == nil {
		t.Error("ParsePolicy(merge) expected error")
	}
}
