package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the exporter.
const (
	observationMeasurement = "observations"
	flushMeasurement       = "ingest"
)

// Observation is one archived value flattened for export.
//
// Numeric variables carry Number; text variables carry Text and leave
// Number nil.
type Observation struct {
	Report string
	Ident  string
	Lat    float64
	Lon    float64
	Level  string
	Trange string
	Var    string
	Number *float64
	Text   string
	Time   time.Time
}

// FlushSummary counts what one ingest flush did to the archive.
type FlushSummary struct {
	Messages int
	Values   int
	Rejected int
	Took     time.Duration
}

// WriteObservation queues one archived value. Report, variable code, level
// and time range become tags so the bucket can be sliced the way the
// archive is queried.
func (c *Client) WriteObservation(obs Observation) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(observationPoint(obs))
}

// WriteFlush queues the counters of one ingest flush, stamped now.
func (c *Client) WriteFlush(summary FlushSummary) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(flushPoint(c.bucket, summary, time.Now()))
}

func observationPoint(obs Observation) *write.Point {
	tags := map[string]string{
		"report": obs.Report,
		"var":    obs.Var,
		"level":  obs.Level,
		"trange": obs.Trange,
	}
	if obs.Ident != "" {
		tags["ident"] = obs.Ident
	}

	fields := map[string]interface{}{
		"lat": obs.Lat,
		"lon": obs.Lon,
	}
	if obs.Number != nil {
		fields["value"] = *obs.Number
	} else {
		fields["text"] = obs.Text
	}

	return write.NewPoint(observationMeasurement, tags, fields, obs.Time)
}

func flushPoint(bucket string, s FlushSummary, at time.Time) *write.Point {
	return write.NewPoint(flushMeasurement,
		map[string]string{"bucket": bucket},
		map[string]interface{}{
			"messages":    s.Messages,
			"values":      s.Values,
			"rejected":    s.Rejected,
			"duration_ms": s.Took.Milliseconds(),
		},
		at)
}
