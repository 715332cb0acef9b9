// Package api provides the read-only HTTP query API for the observation archive.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/obsarchive/internal/archive"
	"github.com/nerrad567/obsarchive/internal/archive/query"
	"github.com/nerrad567/obsarchive/internal/infrastructure/config"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
	"github.com/nerrad567/obsarchive/internal/infrastructure/logging"
	"github.com/nerrad567/obsarchive/internal/ingest"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Archive is the part of *archive.Archive the API reads from.
type Archive interface {
	Vartable() *variable.Vartable
	Reports() []archive.Report
	DB() *database.DB
	HealthCheck(ctx context.Context) error
	QueryStations(ctx context.Context, q *query.Query) (*archive.Cursor[archive.Station], error)
	QueryStationData(ctx context.Context, q *query.Query) (*archive.Cursor[archive.StationDatum], error)
	QueryData(ctx context.Context, q *query.Query) (*archive.Cursor[archive.Datum], error)
	QuerySummary(ctx context.Context, q *query.Query) (*archive.Cursor[archive.SummaryEntry], error)
	AttrQuery(ctx context.Context, kind archive.ValueKind, id int64) ([]variable.Var, error)
}

// IngestStats reports the state of the MQTT ingest service.
type IngestStats interface {
	Stats() ingest.Stats
	Pending() int
}

// Connection is an external connection whose health is reported.
type Connection interface {
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Archive Archive
	Ingest  IngestStats // optional
	MQTT    Connection  // optional
	Influx  Connection  // optional
	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	archive   Archive
	ingest    IngestStats
	mqtt      Connection
	influx    Connection
	version   string
	startTime time.Time
	limiter   *rateLimiter
	server    *http.Server
	addr      net.Addr
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Archive == nil {
		return nil, fmt.Errorf("archive is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		archive:   deps.Archive,
		ingest:    deps.Ingest,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if deps.Config.RateLimit.Enabled {
		s.limiter = newRateLimiter(deps.Config.RateLimit.RequestsPerMinute, deps.Config.RateLimit.Burst)
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns so address errors are reported
// to the caller; requests are then served in a background goroutine until
// Close() is called.
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.limiter != nil {
		go s.limiter.cleanupLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.addr.String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.addr.String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
