package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/variable"
)

func TestDecodeMessage(t *testing.T) {
	payload := []byte(`{
		"lat": 44.5, "lon": 11.33333,
		"datetime": "2024-03-01T12:00:00Z",
		"station": {"name": "Bologna", "B07030": 78.0},
		"data": [
			{"level": [103, 2000], "trange": [254, 0, 0], "var": "t", "value": 293.15, "attrs": {"B33007": 70}},
			{"level": [103, 2000], "trange": [254, 0, 0], "var": "B12103", "value": "288.15"},
			{"level": [1], "trange": [254, 0, 0], "var": "p", "value": 101320}
		]
	}`)

	d, err := decodeMessage("obsarchive/observations/synop/16144", payload, variable.DefaultVartable())
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}

	if d.station == nil || d.station.Report != "synop" || len(d.station.Values) != 2 {
		t.Fatalf("station = %+v", d.station)
	}
	// Station values are sorted by name: B07030 before "name"
	if got := d.station.Values[0].Code().String(); got != "B07030" {
		t.Errorf("first station var = %s, want B07030", got)
	}

	if len(d.data) != 2 {
		t.Fatalf("got %d levtr groups, want 2", len(d.data))
	}
	screen := d.data[0]
	if screen.Level != levtr.NewLevel(103, 2000) {
		t.Errorf("Level = %v, want 103,2000,-,-", screen.Level)
	}
	if screen.Trange != (levtr.Trange{Pind: 254}) {
		t.Errorf("Trange = %v, want 254,0,0", screen.Trange)
	}
	if !screen.Datetime.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Datetime = %v", screen.Datetime)
	}
	if len(screen.Values) != 2 {
		t.Fatalf("screen level has %d values, want 2", len(screen.Values))
	}
	if got := screen.Values[0].Format(); got != "293.15" {
		t.Errorf("t = %s, want 293.15", got)
	}
	if a, ok := screen.Values[0].Attr(variable.MustParseVarcode("B33007")); !ok || a.Format() != "70" {
		t.Errorf("B33007 attribute = %v, %v", a, ok)
	}
	if got := screen.Values[1].Format(); got != "288.15" {
		t.Errorf("td = %s, want 288.15", got)
	}
	if d.values() != 5 {
		t.Errorf("values() = %d, want 5", d.values())
	}
}

func TestDecodeMessage_ReportFromBody(t *testing.T) {
	payload := []byte(`{"report": "temp", "lat": 1, "lon": 2, "ident": "DBBH", "station": {"block": 16}}`)

	d, err := decodeMessage("elsewhere", payload, variable.DefaultVartable())
	if err != nil {
		t.Fatalf("decodeMessage() error = %v", err)
	}
	if d.station.Report != "temp" || d.station.Ident != "DBBH" {
		t.Errorf("station = %+v", d.station)
	}
	if len(d.data) != 0 {
		t.Errorf("data = %v, want none", d.data)
	}
}

func TestDecodeMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not json", "obsarchive/observations/synop", `{`},
		{"no report", "other", `{"lat": 1, "lon": 2, "station": {"block": 1}}`},
		{"no coordinates", "obsarchive/observations/synop", `{"lon": 2, "station": {"block": 1}}`},
		{"latitude out of range", "obsarchive/observations/synop", `{"lat": 91, "lon": 2, "station": {"block": 1}}`},
		{"longitude out of range", "obsarchive/observations/synop", `{"lat": 1, "lon": 30000, "station": {"block": 1}}`},
		{"latitude beyond fixed point", "obsarchive/observations/synop", `{"lat": 50000, "lon": 2, "station": {"block": 1}}`},
		{"empty", "obsarchive/observations/synop", `{"lat": 1, "lon": 2}`},
		{"no datetime", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "data": [{"var": "t", "value": 1}]}`},
		{"bad datetime", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "datetime": "yesterday", "data": [{"var": "t", "value": 1}]}`},
		{"unknown variable", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "station": {"B99999": 1}}`},
		{"null value", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "station": {"block": null}}`},
		{"object value", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "station": {"block": {}}}`},
		{"long level", "obsarchive/observations/synop", `{"lat": 1, "lon": 2, "datetime": "2024-03-01 12:00:00", "data": [{"level": [1,2,3,4,5], "var": "t", "value": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMessage(tt.topic, []byte(tt.payload), variable.DefaultVartable())
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("decodeMessage() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestParseDatetime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-01T12:30:00Z", "2024-03-01T13:30:00+01:00", "2024-03-01 12:30:00", "2024-03-01T12:30:00"} {
		got, err := parseDatetime(s)
		if err != nil {
			t.Errorf("parseDatetime(%q) error = %v", s, err)
			continue
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("parseDatetime(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestParseLevelMissingFields(t *testing.T) {
	one := 1
	l, err := parseLevel([]*int{&one, nil})
	if err != nil {
		t.Fatalf("parseLevel() error = %v", err)
	}
	if l != (levtr.Level{Ltype1: 1, L1: levtr.Missing, Ltype2: levtr.Missing, L2: levtr.Missing}) {
		t.Errorf("parseLevel() = %v", l)
	}

	tr, err := parseTrange(nil)
	if err != nil {
		t.Fatalf("parseTrange() error = %v", err)
	}
	if !tr.IsMissing() {
		t.Errorf("parseTrange(nil) = %v, want missing", tr)
	}
}
