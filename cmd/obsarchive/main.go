// obsarchive - meteorological observation archive
//
// This is the main entry point for the observation archive service. It opens
// the archive database, ingests observation messages from MQTT, mirrors them
// to InfluxDB and serves the read-only HTTP query API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/obsarchive/internal/api"
	"github.com/nerrad567/obsarchive/internal/archive"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/infrastructure/config"
	"github.com/nerrad567/obsarchive/internal/infrastructure/influxdb"
	"github.com/nerrad567/obsarchive/internal/infrastructure/logging"
	"github.com/nerrad567/obsarchive/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsarchive/internal/ingest"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting obsarchive",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	arch, err := openArchive(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing archive")
		if closeErr := arch.Close(); closeErr != nil {
			log.Error("error closing archive", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, influxdb.WithErrorHandler(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		}))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT and build the ingest service (optional)
	var (
		mqttClient *mqtt.Client
		ingestSvc  *ingest.Service
	)
	if cfg.Ingest.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT,
			mqtt.WithLogger(log.Component("mqtt")),
			mqtt.WithOnConnect(func() { log.Info("MQTT connected") }),
			mqtt.WithOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) }),
		)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT broker reachable",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		ingestSvc, err = newIngestService(cfg, arch, mqttClient, influxClient, log)
		if err != nil {
			return err
		}
	} else {
		log.Info("ingest disabled")
	}

	if err := healthCheck(ctx, arch, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)

	if ingestSvc != nil {
		g.Go(func() error {
			return ingestSvc.Run(gctx)
		})
	}

	if cfg.API.Enabled {
		server, err := newAPIServer(cfg, arch, ingestSvc, mqttClient, influxClient, log)
		if err != nil {
			return err
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	} else {
		log.Info("API disabled")
	}

	if interval := cfg.GetVacuumInterval(); interval > 0 {
		g.Go(func() error {
			vacuumLoop(gctx, arch, interval, log)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Deferred Close() calls will run in reverse order:
	// 1. MQTT (if enabled)
	// 2. InfluxDB (if enabled)
	// 3. Archive
	log.Info("obsarchive stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OBSARCHIVE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OBSARCHIVE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openArchive opens the archive described by cfg, applying migrations and
// synchronising the configured reports.
func openArchive(ctx context.Context, cfg *config.Config, log *logging.Logger) (*archive.Archive, error) {
	var table *variable.Vartable
	if cfg.Archive.VartableFile != "" {
		t, err := variable.LoadVartable(cfg.Archive.VartableFile)
		if err != nil {
			return nil, fmt.Errorf("loading variable table: %w", err)
		}
		table = t
		log.Info("variable table loaded", "path", cfg.Archive.VartableFile)
	}

	reports := make([]archive.Report, 0, len(cfg.Reports))
	for _, r := range cfg.Reports {
		reports = append(reports, archive.Report{
			Memo:        r.Memo,
			Description: r.Description,
			Priority:    r.Priority,
		})
	}

	arch, err := archive.Open(ctx, archive.Config{
		Database:        cfg.DatabaseConfig(),
		Vartable:        table,
		StoreAttributes: cfg.Archive.StoreAttributes,
		ChunkSize:       cfg.Archive.InsertChunkSize,
		DefaultPriority: cfg.Archive.DefaultPriority,
		Reports:         reports,
		Logger:          log.Component("archive"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	log.Info("archive opened",
		"backend", arch.DB().Dialect().Name(),
		"reports", len(arch.Reports()),
	)
	return arch, nil
}

// newIngestService builds the MQTT ingest service. influxClient may be nil.
func newIngestService(cfg *config.Config, arch *archive.Archive, broker ingest.Broker, influxClient *influxdb.Client, log *logging.Logger) (*ingest.Service, error) {
	policy, err := batch.ParsePolicy(cfg.Ingest.Policy)
	if err != nil {
		return nil, fmt.Errorf("ingest policy: %w", err)
	}

	opts := []ingest.Option{
		ingest.WithBroker(broker),
		ingest.WithLogger(log.Component("ingest")),
	}
	if influxClient != nil {
		opts = append(opts, ingest.WithExporter(influxClient))
	}

	return ingest.New(arch, ingest.Config{
		Topic:          cfg.Ingest.Topic,
		QoS:            byte(cfg.Ingest.QoS),
		BatchSize:      cfg.Ingest.BatchSize,
		FlushInterval:  cfg.GetFlushInterval(),
		Policy:         policy,
		RetryAsUpdate:  cfg.Ingest.RetryAsUpdate,
		CanAddStations: cfg.Ingest.CanAddStations,
	}, opts...), nil
}

// newAPIServer builds the HTTP API server. Optional collaborators may be nil.
func newAPIServer(cfg *config.Config, arch *archive.Archive, ingestSvc *ingest.Service, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log.Component("api"),
		Archive: arch,
		Version: version,
	}
	if ingestSvc != nil {
		deps.Ingest = ingestSvc
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.Influx = influxClient
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	return server, nil
}

// vacuumLoop removes orphaned stations and levels every interval until ctx
// is cancelled. Failures are logged and retried on the next tick.
func vacuumLoop(ctx context.Context, arch *archive.Archive, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := arch.Vacuum(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("archive vacuum failed", "error", err)
				}
				continue
			}
			if stats.Stations > 0 || stats.Levtr > 0 {
				log.Info("archive vacuumed",
					"stations_removed", stats.Stations,
					"levtr_removed", stats.Levtr,
				)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, arch *archive.Archive, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := arch.HealthCheck(ctx); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
