package query

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
	"github.com/nerrad567/obsarchive/migrations"
)

// openFixture opens a migrated SQLite archive holding two reports, three
// stations and a handful of values.
func openFixture(t *testing.T) *database.DB {
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
	ctx := context.Background()
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	fixture := []string{
		"INSERT INTO repinfo (id, memo, prio) VALUES (1, 'synop', 101), (2, 'temp', 400)",
		// Bologna, a station near the antimeridian and a ship.
		"INSERT INTO station (id, rep, lat, lon, ident) VALUES " +
			"(1, 1, 4450000, 1133333, ''), (2, 2, -1700000, 17900000, ''), (3, 1, 4000000, 1000000, 'ship01')",
		"INSERT INTO levtr (id, ltype1, l1, ltype2, l2, pind, p1, p2) VALUES " +
			"(1, 103, 2000, 2147483647, 2147483647, 254, 0, 0), (2, 1, 2147483647, 2147483647, 2147483647, 254, 0, 0)",
		"INSERT INTO station_data (id_station, code, value) VALUES (1, 257, '16144'), (2, 257, '91680')",
		"INSERT INTO data (id_station, id_levtr, datetime, code, value) VALUES " +
			"(1, 1, '2026-03-01 12:00:00', 3173, '28315'), " +
			"(1, 2, '2026-03-01 12:00:00', 2564, '101320'), " +
			"(2, 1, '2026-03-01 18:00:00', 3173, '30015'), " +
			"(3, 1, '2026-03-02 00:00:00', 3173, '28000')",
	}
	for _, stmt := range fixture {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("fixture %q: %v", stmt, err)
		}
	}
	return db
}

// queryIDs runs stmt and returns the first column of every row.
func queryIDs(t *testing.T, db *database.DB, stmt Statement) []int64 {
	t.Helper()

	rows, err := db.QueryContext(context.Background(), stmt.SQL, stmt.Args...)
	if err != nil {
		t.Fatalf("query %q: %v", stmt.SQL, err)
	}
	defer rows.Close() //nolint:errcheck // Test cleanup

	var ids []int64
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			t.Fatalf("Columns() error = %v", err)
		}
		dest := make([]any, len(cols))
		var id int64
		dest[0] = &id
		for i := 1; i < len(dest); i++ {
			var skip any
			dest[i] = &skip
		}
		if err := rows.Scan(dest...); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err() = %v", err)
	}
	return ids
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func buildQuery(t *testing.T, pairs ...string) *Query {
	t.Helper()
	q := &Query{}
	for i := 0; i+1 < len(pairs); i += 2 {
		k, err := ParseKey(pairs[i])
		if err != nil {
			t.Fatalf("ParseKey(%q) error = %v", pairs[i], err)
		}
		mustSet(t, q, k, pairs[i+1])
	}
	return q
}

func TestBuildStations(t *testing.T) {
	db := openFixture(t)
	dialect := db.Dialect()

	tests := []struct {
		name  string
		pairs []string
		want  []int64
	}{
		{"all", nil, []int64{1, 2, 3}},
		{"report", []string{"rep_memo", "synop"}, []int64{1, 3}},
		{"priority", []string{"priomin", "200"}, []int64{2}},
		{"fixed only", []string{"mobile", "false"}, []int64{1, 2}},
		{"mobile only", []string{"mobile", "true"}, []int64{3}},
		{"ident", []string{"ident", "ship01"}, []int64{3}},
		{"lat box", []string{"latmin", "44", "latmax", "45"}, []int64{1}},
		{"lon range", []string{"lonmin", "10", "lonmax", "12"}, []int64{1, 3}},
		{"lon across antimeridian", []string{"lonmin", "170", "lonmax", "-170"}, []int64{2}},
		{"lon full circle", []string{"lonmin", "-180", "lonmax", "180"}, []int64{1, 2, 3}},
		{"has data in range", []string{"datetimemin", "2026-03-01 15:00:00"}, []int64{2, 3}},
		{"has variable", []string{"var", "B10004"}, []int64{1}},
		{"limit", []string{"limit", "2"}, []int64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := BuildStations(buildQuery(t, tt.pairs...), dialect)
			if err != nil {
				t.Fatalf("BuildStations() error = %v", err)
			}
			if got := queryIDs(t, db, stmt); !equalIDs(got, tt.want) {
				t.Errorf("stations = %v, want %v\nSQL: %s", got, tt.want, stmt.SQL)
			}
		})
	}
}

func TestBuildData(t *testing.T) {
	db := openFixture(t)
	dialect := db.Dialect()

	tests := []struct {
		name  string
		pairs []string
		want  []int64
	}{
		{"all", nil, []int64{2, 1, 3, 4}},
		{"variable", []string{"var", "t"}, []int64{1, 3, 4}},
		{"exact datetime", []string{"datetime", "2026-03-01 12:00:00"}, []int64{2, 1}},
		{"level type", []string{"leveltype1", "1"}, []int64{2}},
		{"level and trange", []string{"leveltype1", "103", "l1", "2000", "pindicator", "254"}, []int64{1, 3, 4}},
		{"station and variable", []string{"ana_id", "1", "varlist", "B12101,B10004"}, []int64{2, 1}},
		{"limit", []string{"limit", "1"}, []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := BuildData(buildQuery(t, tt.pairs...), dialect)
			if err != nil {
				t.Fatalf("BuildData() error = %v", err)
			}
			if got := queryIDs(t, db, stmt); !equalIDs(got, tt.want) {
				t.Errorf("data = %v, want %v\nSQL: %s", got, tt.want, stmt.SQL)
			}
		})
	}
}

func TestBuildDataBestOrdering(t *testing.T) {
	db := openFixture(t)
	q := buildQuery(t, "query", "best", "limit", "1")

	stmt, err := BuildData(q, db.Dialect())
	if err != nil {
		t.Fatalf("BuildData() error = %v", err)
	}
	if strings.Contains(stmt.SQL, "LIMIT") {
		t.Errorf("best query carries a SQL limit: %s", stmt.SQL)
	}
	// Ordered by latitude first: the southern station, the ship, then Bologna.
	if got, want := queryIDs(t, db, stmt), []int64{3, 4, 2, 1}; !equalIDs(got, want) {
		t.Errorf("data = %v, want %v", got, want)
	}
}

func TestBuildDataAttrFilterSkipsLimit(t *testing.T) {
	q := &Query{Limit: 5, AttrFilter: "B33007>50"}
	dialect, err := backend.LookupDialect(backend.SQLite)
	if err != nil {
		t.Fatalf("LookupDialect() error = %v", err)
	}
	stmt, err := BuildData(q, dialect)
	if err != nil {
		t.Fatalf("BuildData() error = %v", err)
	}
	if strings.Contains(stmt.SQL, "LIMIT") {
		t.Errorf("filtered query carries a SQL limit: %s", stmt.SQL)
	}
}

func TestBuildStationData(t *testing.T) {
	db := openFixture(t)

	stmt, err := BuildStationData(buildQuery(t, "rep_memo", "temp"), db.Dialect())
	if err != nil {
		t.Fatalf("BuildStationData() error = %v", err)
	}
	if got, want := queryIDs(t, db, stmt), []int64{2}; !equalIDs(got, want) {
		t.Errorf("station data = %v, want %v", got, want)
	}

	if _, err := BuildStationData(&Query{Best: true}, db.Dialect()); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("BuildStationData(best) error = %v, want ErrInvalidQuery", err)
	}
}

func TestBuildSummary(t *testing.T) {
	db := openFixture(t)

	stmt, err := BuildSummary(buildQuery(t, "var", "t"), db.Dialect())
	if err != nil {
		t.Fatalf("BuildSummary() error = %v", err)
	}
	rows, err := db.QueryContext(context.Background(), stmt.SQL, stmt.Args...)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close() //nolint:errcheck // Test cleanup

	var stations []int64
	for rows.Next() {
		var (
			id, idLevtr                          int64
			memo, ident                          string
			prio, lat, lon                       int
			lt1, l1, lt2, l2, pind, p1, p2, code int
			count                                int
			minDT, maxDT                         backend.Time
		)
		if err := rows.Scan(&id, &memo, &prio, &lat, &lon, &ident, &idLevtr,
			&lt1, &l1, &lt2, &l2, &pind, &p1, &p2, &code, &count, &minDT, &maxDT); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if count != 1 {
			t.Errorf("station %d count = %d, want 1", id, count)
		}
		if !minDT.Equal(maxDT.Time) {
			t.Errorf("station %d min %v != max %v", id, minDT, maxDT)
		}
		stations = append(stations, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err() = %v", err)
	}
	if want := []int64{1, 2, 3}; !equalIDs(stations, want) {
		t.Errorf("summary stations = %v, want %v", stations, want)
	}
}

func TestBuildIDs(t *testing.T) {
	db := openFixture(t)

	stmt, err := BuildDataIDs(buildQuery(t, "ana_id", "1"), db.Dialect())
	if err != nil {
		t.Fatalf("BuildDataIDs() error = %v", err)
	}
	if got, want := queryIDs(t, db, stmt), []int64{1, 2}; !equalIDs(got, want) {
		t.Errorf("data ids = %v, want %v", got, want)
	}

	stmt, err = BuildStationDataIDs(buildQuery(t, "var", "B01001"), db.Dialect())
	if err != nil {
		t.Fatalf("BuildStationDataIDs() error = %v", err)
	}
	if got, want := queryIDs(t, db, stmt), []int64{1, 2}; !equalIDs(got, want) {
		t.Errorf("station data ids = %v, want %v", got, want)
	}
}

func TestBuildRejectsInvalidQuery(t *testing.T) {
	dialect, err := backend.LookupDialect(backend.Postgres)
	if err != nil {
		t.Fatalf("LookupDialect() error = %v", err)
	}
	lon := int32(0)
	bad := &Query{LonMin: &lon}
	builders := map[string]func(*Query, backend.Dialect) (Statement, error){
		"stations":     BuildStations,
		"station data": BuildStationData,
		"data":         BuildData,
		"summary":      BuildSummary,
		"data ids":     BuildDataIDs,
	}
	for name, build := range builders {
		if _, err := build(bad, dialect); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("%s: error = %v, want ErrInvalidQuery", name, err)
		}
	}
}

func TestStatementDescribe(t *testing.T) {
	dialect, err := backend.LookupDialect(backend.SQLite)
	if err != nil {
		t.Fatalf("LookupDialect() error = %v", err)
	}
	dt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stmt := Statement{SQL: "r.memo = ? AND d.datetime >= ? AND d.code = ?", Args: []any{"o'hare", dialect.TimeArg(dt), 3173}}
	want := "r.memo = 'o''hare' AND d.datetime >= '2026-03-01 12:00:00' AND d.code = 3173"
	if got := stmt.Describe(dialect); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

// TestBuildJoinsAreFlat verifies every join carries its own ON clause on
// every backend, since nested "JOIN a JOIN b ON .. ON .." is not portable.
func TestBuildJoinsAreFlat(t *testing.T) {
	builders := map[string]func(*Query, backend.Dialect) (Statement, error){
		"stations":         BuildStations,
		"station data":     BuildStationData,
		"data":             BuildData,
		"summary":          BuildSummary,
		"data ids":         BuildDataIDs,
		"station data ids": BuildStationDataIDs,
	}
	for _, name := range []string{backend.SQLite, backend.Postgres, backend.DuckDB, backend.MySQL} {
		dialect, err := backend.LookupDialect(name)
		if err != nil {
			t.Fatalf("LookupDialect(%q) error = %v", name, err)
		}
		for kind, build := range builders {
			t.Run(name+"/"+kind, func(t *testing.T) {
				stmt, err := build(buildQuery(t, "var", "t"), dialect)
				if err != nil {
					t.Fatalf("build error = %v", err)
				}
				segments := strings.Split(stmt.SQL, " JOIN ")
				if len(segments) < 2 {
					t.Fatalf("no join in %s", stmt.SQL)
				}
				for _, seg := range segments[1:] {
					if n := strings.Count(seg, " ON "); n != 1 {
						t.Errorf("join segment %q has %d ON clauses\nSQL: %s", seg, n, stmt.SQL)
					}
				}
			})
		}
	}
}
