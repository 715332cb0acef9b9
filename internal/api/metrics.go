package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/obsarchive/internal/ingest"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsarchive_api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsarchive_api_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	rowsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsarchive_api_rows_returned_total",
			Help: "Total number of rows returned by query endpoints",
		},
		[]string{"endpoint"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "obsarchive_api_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// SystemMetrics represents the /status response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Database      DatabaseMetrics   `json:"database"`
	Connections   map[string]bool   `json:"connections,omitempty"`
	Ingest        *IngestMetrics    `json:"ingest,omitempty"`
	RateLimit     *RateLimitMetrics `json:"rate_limit,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Backend         string `json:"backend"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// IngestMetrics contains ingest service counters.
type IngestMetrics struct {
	ingest.Stats
	Pending int `json:"pending"`
}

// RateLimitMetrics contains rate limiter statistics.
type RateLimitMetrics struct {
	Clients int `json:"clients"`
}

// handleStatus returns runtime, database and ingest statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if db := s.archive.DB(); db != nil {
		dbStats := db.Stats()
		metrics.Database = DatabaseMetrics{
			Backend:         db.Dialect().Name(),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if s.mqtt != nil || s.influx != nil {
		metrics.Connections = make(map[string]bool)
		if s.mqtt != nil {
			metrics.Connections["mqtt"] = s.mqtt.IsConnected()
		}
		if s.influx != nil {
			metrics.Connections["influxdb"] = s.influx.IsConnected()
		}
	}

	if s.ingest != nil {
		metrics.Ingest = &IngestMetrics{
			Stats:   s.ingest.Stats(),
			Pending: s.ingest.Pending(),
		}
	}

	if s.limiter != nil {
		metrics.RateLimit = &RateLimitMetrics{Clients: s.limiter.size()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
