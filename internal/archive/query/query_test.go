package query

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/variable"
)

func mustSet(t *testing.T, q *Query, key Key, value string) {
	t.Helper()
	if err := q.Set(variable.DefaultVartable(), key, value); err != nil {
		t.Fatalf("Set(%s, %q) error = %v", key, value, err)
	}
}

func TestSetStationKeys(t *testing.T) {
	var q Query
	mustSet(t, &q, KeyAnaID, "42")
	mustSet(t, &q, KeyRepMemo, "synop")
	mustSet(t, &q, KeyPriority, "101")
	mustSet(t, &q, KeyLatMin, "44.5")
	mustSet(t, &q, KeyLatMax, "45")
	mustSet(t, &q, KeyLon, "11.33333")
	mustSet(t, &q, KeyIdent, "ship01")

	if q.AnaID == nil || *q.AnaID != 42 {
		t.Errorf("AnaID = %v, want 42", q.AnaID)
	}
	if q.RepMemo == nil || *q.RepMemo != "synop" {
		t.Errorf("RepMemo = %v, want synop", q.RepMemo)
	}
	if *q.PrioMin != 101 || *q.PrioMax != 101 {
		t.Errorf("priority range = %d..%d, want 101..101", *q.PrioMin, *q.PrioMax)
	}
	if *q.LatMin != 4450000 || *q.LatMax != 4500000 {
		t.Errorf("lat range = %d..%d", *q.LatMin, *q.LatMax)
	}
	if *q.LonMin != 1133333 || *q.LonMax != 1133333 {
		t.Errorf("lon range = %d..%d", *q.LonMin, *q.LonMax)
	}
	if *q.Ident != "ship01" {
		t.Errorf("Ident = %q", *q.Ident)
	}
	if err := q.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSetDataKeys(t *testing.T) {
	var q Query
	mustSet(t, &q, KeyDatetimeMin, "2026-03-01 00:00:00")
	mustSet(t, &q, KeyDatetimeMax, "2026-03-01T12:00:00Z")
	mustSet(t, &q, KeyLeveltype1, "103")
	mustSet(t, &q, KeyL1, "2000")
	mustSet(t, &q, KeyPindicator, "254")
	mustSet(t, &q, KeyVarlist, "t, B12103,rh")
	mustSet(t, &q, KeyLimit, "10")
	mustSet(t, &q, KeyQuery, "best")

	wantMin := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !q.DatetimeMin.Equal(wantMin) {
		t.Errorf("DatetimeMin = %v, want %v", q.DatetimeMin, wantMin)
	}
	if q.Level == nil || q.Level.Ltype1 != 103 || q.Level.L1 != 2000 || q.Level.Ltype2 != levtr.Missing {
		t.Errorf("Level = %v", q.Level)
	}
	if q.Trange == nil || q.Trange.Pind != 254 || q.Trange.P1 != levtr.Missing {
		t.Errorf("Trange = %v", q.Trange)
	}
	want := []variable.Varcode{
		variable.MustParseVarcode("B12101"),
		variable.MustParseVarcode("B12103"),
		variable.MustParseVarcode("B13003"),
	}
	if len(q.Varcodes) != len(want) {
		t.Fatalf("Varcodes = %v, want %v", q.Varcodes, want)
	}
	for i := range want {
		if q.Varcodes[i] != want[i] {
			t.Errorf("Varcodes[%d] = %v, want %v", i, q.Varcodes[i], want[i])
		}
	}
	if q.Limit != 10 || !q.Best {
		t.Errorf("Limit = %d, Best = %v", q.Limit, q.Best)
	}
}

func TestSetInvalidValues(t *testing.T) {
	tests := []struct {
		key   Key
		value string
	}{
		{KeyAnaID, "abc"},
		{KeyLat, "north"},
		{KeyLon, "720"},
		{KeyMobile, "maybe"},
		{KeyDatetime, "yesterday"},
		{KeyL1, "high"},
		{KeyVar, "t,td"},
		{KeyVar, "not_a_variable"},
		{KeyLimit, "-1"},
		{KeyQuery, "worst"},
		{KeyContextID, "1"},
		{KeyValue, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.key.String()+"="+tt.value, func(t *testing.T) {
			var q Query
			err := q.Set(variable.DefaultVartable(), tt.key, tt.value)
			if err == nil {
				t.Fatal("Set() expected error")
			}
			if !dberrors.IsConsistency(err) {
				t.Errorf("Set() error = %v, want a consistency error", err)
			}
		})
	}
}

func TestSetVarWithoutTable(t *testing.T) {
	var q Query
	if err := q.Set(nil, KeyVar, "B12101"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := q.Set(nil, KeyVar, "t"); err == nil {
		t.Error("Set() expected error for an alias without a table")
	}
}

func TestSetLevtrMissingMarker(t *testing.T) {
	var q Query
	mustSet(t, &q, KeyLeveltype1, "1")
	mustSet(t, &q, KeyL1, "-")
	if q.Level.L1 != levtr.Missing {
		t.Errorf("L1 = %d, want Missing", q.Level.L1)
	}
}

func TestValidate(t *testing.T) {
	i := func(v int) *int { return &v }
	c := func(v int32) *int32 { return &v }
	b := func(v bool) *bool { return &v }
	s := func(v string) *string { return &v }
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"empty", Query{}, false},
		{"prio range", Query{PrioMin: i(10), PrioMax: i(20)}, false},
		{"prio inverted", Query{PrioMin: i(20), PrioMax: i(10)}, true},
		{"lat inverted", Query{LatMin: c(100), LatMax: c(-100)}, true},
		{"lat out of range", Query{LatMin: c(9100000)}, true},
		{"lonmin alone", Query{LonMin: c(0)}, true},
		{"lon wrapping", Query{LonMin: c(17000000), LonMax: c(-17000000)}, false},
		{"datetime inverted", Query{DatetimeMin: &late, DatetimeMax: &early}, true},
		{"ident on fixed", Query{Ident: s("ship"), Mobile: b(false)}, true},
		{"ident on mobile", Query{Ident: s("ship"), Mobile: b(true)}, false},
		{"negative limit", Query{Limit: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}
