package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check of /health.
const healthCheckTimeout = 5 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint, outside the rate limit
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Get("/reports", s.handleListReports)
			r.Get("/variables", s.handleListVariables)

			r.Get("/stations", s.handleListStations)

			r.Route("/station-data", func(r chi.Router) {
				r.Get("/", s.handleListStationData)
				r.Get("/{id}/attrs", s.handleStationDataAttrs)
			})

			r.Route("/data", func(r chi.Router) {
				r.Get("/", s.handleListData)
				r.Get("/{id}/attrs", s.handleDataAttrs)
			})

			r.Get("/summary", s.handleSummary)
		})
	})

	return r
}

// healthResponse is the body of /health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// handleHealth reports the archive and connection health. A failing archive
// makes the service unavailable; failing optional connections only degrade it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Checks:  make(map[string]string),
	}
	status := http.StatusOK

	if err := s.check(r.Context(), s.archive.HealthCheck); err != nil {
		resp.Checks["archive"] = err.Error()
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["archive"] = "ok"
	}

	for name, conn := range map[string]Connection{"mqtt": s.mqtt, "influxdb": s.influx} {
		if conn == nil {
			continue
		}
		if err := s.check(r.Context(), conn.HealthCheck); err != nil {
			resp.Checks[name] = err.Error()
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

func (s *Server) check(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return fn(ctx)
}
