package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/obsarchive/internal/archive"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/levtr"
	"github.com/nerrad567/obsarchive/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// Message is the JSON payload of one observation message.
//
//	{
//	  "report": "synop",
//	  "lat": 44.5, "lon": 11.33333,
//	  "datetime": "2024-03-01T12:00:00Z",
//	  "station": {"B01019": "Bologna"},
//	  "data": [
//	    {"level": [103, 2000], "trange": [254, 0, 0], "var": "B12101", "value": 293.15,
//	     "attrs": {"B33007": 70}}
//	  ]
//	}
//
// Report defaults to the report level of the topic. Level and trange list
// up to four and three fields; absent or null fields are missing. Variables
// are varcodes or vartable aliases.
type Message struct {
	Report   string         `json:"report"`
	Lat      *float64       `json:"lat"`
	Lon      *float64       `json:"lon"`
	Ident    string         `json:"ident,omitempty"`
	Datetime string         `json:"datetime,omitempty"`
	Station  map[string]any `json:"station,omitempty"`
	Data     []DataValue    `json:"data,omitempty"`
}

// DataValue is one measured value of a Message.
type DataValue struct {
	Level  []*int         `json:"level,omitempty"`
	Trange []*int         `json:"trange,omitempty"`
	Var    string         `json:"var"`
	Value  any            `json:"value"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// datetimeLayouts are the accepted datetime formats, tried in order.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// decoded is a message converted to archive inputs.
type decoded struct {
	topic   string
	payload []byte
	station *archive.StationValues
	data    []*archive.MeasuredValues
}

// values returns the number of variables the message carries.
func (d *decoded) values() int {
	n := 0
	if d.station != nil {
		n += len(d.station.Values)
	}
	for _, m := range d.data {
		n += len(m.Values)
	}
	return n
}

// decodeMessage parses payload and converts it with table.
func decodeMessage(topic string, payload []byte, table *variable.Vartable) (*decoded, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if msg.Report == "" {
		msg.Report, _, _ = mqtt.ParseObservationTopic(topic)
	}
	if msg.Report == "" {
		return nil, fmt.Errorf("%w: no report in message or topic", ErrInvalidMessage)
	}
	if msg.Lat == nil || msg.Lon == nil {
		return nil, fmt.Errorf("%w: lat and lon are required", ErrInvalidMessage)
	}
	if len(msg.Station) == 0 && len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: no station or data values", ErrInvalidMessage)
	}

	coords, err := batch.ParseCoords(*msg.Lat, *msg.Lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	d := &decoded{topic: topic, payload: payload}

	if len(msg.Station) > 0 {
		vars, err := newVars(table, msg.Station)
		if err != nil {
			return nil, err
		}
		d.station = &archive.StationValues{
			Report: msg.Report,
			Coords: coords,
			Ident:  msg.Ident,
			Values: vars,
		}
	}

	if len(msg.Data) == 0 {
		return d, nil
	}

	when, err := parseDatetime(msg.Datetime)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*archive.MeasuredValues)
	for i, dv := range msg.Data {
		level, err := parseLevel(dv.Level)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		trange, err := parseTrange(dv.Trange)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		v, err := newVar(table, dv.Var, dv.Value)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		if len(dv.Attrs) > 0 {
			attrs, err := newVars(table, dv.Attrs)
			if err != nil {
				return nil, fmt.Errorf("data[%d]: %w", i, err)
			}
			v.SetAttrs(attrs)
		}

		key := level.String() + "|" + trange.String()
		mv, ok := groups[key]
		if !ok {
			mv = &archive.MeasuredValues{
				Report:   msg.Report,
				Coords:   coords,
				Ident:    msg.Ident,
				Datetime: when,
				Level:    level,
				Trange:   trange,
			}
			groups[key] = mv
			d.data = append(d.data, mv)
		}
		mv.Values = append(mv.Values, v)
	}
	return d, nil
}

// parseDatetime accepts the layouts of datetimeLayouts and returns UTC.
func parseDatetime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: datetime is required with data values", ErrInvalidMessage)
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: datetime %q", ErrInvalidMessage, s)
}

// fields copies up to n JSON fields, leaving the rest missing.
func fields(src []*int, n int, what string) ([]int, error) {
	if len(src) > n {
		return nil, fmt.Errorf("%w: %s has %d fields, at most %d", ErrInvalidMessage, what, len(src), n)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = levtr.Missing
		if i < len(src) && src[i] != nil {
			out[i] = *src[i]
		}
	}
	return out, nil
}

func parseLevel(src []*int) (levtr.Level, error) {
	f, err := fields(src, 4, "level")
	if err != nil {
		return levtr.Level{}, err
	}
	return levtr.Level{Ltype1: f[0], L1: f[1], Ltype2: f[2], L2: f[3]}, nil
}

func parseTrange(src []*int) (levtr.Trange, error) {
	f, err := fields(src, 3, "trange")
	if err != nil {
		return levtr.Trange{}, err
	}
	return levtr.Trange{Pind: f[0], P1: f[1], P2: f[2]}, nil
}

// newVar converts a decoded JSON value. Numbers arrive as float64.
func newVar(table *variable.Vartable, name string, value any) (variable.Var, error) {
	if strings.TrimSpace(name) == "" {
		return variable.Var{}, fmt.Errorf("%w: empty variable name", ErrInvalidMessage)
	}
	switch value.(type) {
	case float64, string:
	case nil:
		return variable.Var{}, fmt.Errorf("%w: %s has no value", ErrInvalidMessage, name)
	default:
		return variable.Var{}, fmt.Errorf("%w: %s: unsupported value %T", ErrInvalidMessage, name, value)
	}
	v, err := table.NewVar(name, value)
	if err != nil {
		return variable.Var{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return v, nil
}

// newVars converts a name to value map in name order.
func newVars(table *variable.Vartable, values map[string]any) ([]variable.Var, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]variable.Var, 0, len(names))
	for _, name := range names {
		v, err := newVar(table, name, values[name])
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}
