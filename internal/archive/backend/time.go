package backend

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Time scans a timestamp column regardless of how the driver returns it:
// time.Time (postgres, duckdb, typed sqlite columns) or text (sqlite
// aggregates, mysql without parseTime).
type Time struct {
	time.Time
}

// textLayouts are tried in order when a timestamp arrives as text.
var textLayouts = []string{
	timeLayout,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Scan implements sql.Scanner.
func (t *Time) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("backend: cannot scan %T into Time", src)
	}
}

func (t *Time) parse(s string) error {
	for _, layout := range textLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("backend: unrecognised timestamp %q", s)
}

// Value implements driver.Valuer using the textual layout, which every
// supported engine accepts for timestamp columns.
func (t Time) Value() (driver.Value, error) {
	return t.UTC().Format(timeLayout), nil
}
