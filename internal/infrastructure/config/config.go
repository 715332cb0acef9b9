package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/obsarchive/internal/archive/backend"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/infrastructure/database"
)

// envPrefix prefixes every environment override.
const envPrefix = "OBSARCHIVE_"

// Config is the root configuration structure for the observation archive.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Archive  ArchiveConfig  `yaml:"archive"`
	Reports  []ReportConfig `yaml:"reports"`
	Ingest   IngestConfig   `yaml:"ingest"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ArchiveConfig contains storage settings.
type ArchiveConfig struct {
	// Backend is sqlite, postgres, duckdb or mysql.
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	WALMode      bool   `yaml:"wal_mode"`
	BusyTimeout  int    `yaml:"busy_timeout"`
	MaxOpenConns int    `yaml:"max_open_conns"`

	StoreAttributes bool `yaml:"store_attributes"`
	InsertChunkSize int  `yaml:"insert_chunk_size"`

	// DefaultPriority is given to reports first seen in incoming data.
	DefaultPriority int `yaml:"default_priority"`

	// VartableFile extends the built-in variable dictionary.
	VartableFile string `yaml:"vartable_file"`

	// VacuumInterval is the period of orphan cleanup in seconds. 0 disables it.
	VacuumInterval int `yaml:"vacuum_interval"`
}

// ReportConfig declares a report and its priority.
type ReportConfig struct {
	Memo        string `yaml:"memo"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
}

// IngestConfig contains the MQTT observation feed settings.
type IngestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	QoS     int    `yaml:"qos"`

	// BatchSize is the number of messages per archive transaction.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the maximum delay in milliseconds before a partial
	// batch is written.
	FlushInterval int `yaml:"flush_interval"`

	// Policy is error, ignore or update.
	Policy string `yaml:"policy"`

	// RetryAsUpdate retries a batch rejected for duplicates with the update policy.
	RetryAsUpdate bool `yaml:"retry_as_update"`

	CanAddStations bool `yaml:"can_add_stations"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`

	// MaxRows caps the rows returned by one query.
	MaxRows int `yaml:"max_rows"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file next to the YAML file, if present (never overrides the real environment)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: OBSARCHIVE_SECTION_KEY
// For example: OBSARCHIVE_ARCHIVE_PATH, OBSARCHIVE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path into the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Backend:         backend.SQLite,
			Path:            "./data/obsarchive.db",
			WALMode:         true,
			BusyTimeout:     5,
			StoreAttributes: true,
			InsertChunkSize: 200,
			DefaultPriority: 0,
			VacuumInterval:  3600,
		},
		Ingest: IngestConfig{
			Topic:          "obsarchive/observations/#",
			QoS:            1,
			BatchSize:      100,
			FlushInterval:  1000,
			Policy:         "update",
			CanAddStations: true,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "obsarchive",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     500,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
			},
			MaxRows: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OBSARCHIVE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"ARCHIVE_BACKEND":  &cfg.Archive.Backend,
		"ARCHIVE_PATH":     &cfg.Archive.Path,
		"ARCHIVE_DSN":      &cfg.Archive.DSN,
		"ARCHIVE_VARTABLE": &cfg.Archive.VartableFile,
		"INGEST_TOPIC":     &cfg.Ingest.Topic,
		"INGEST_POLICY":    &cfg.Ingest.Policy,
		"MQTT_HOST":        &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":    &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":    &cfg.MQTT.Auth.Password,
		"INFLUXDB_URL":     &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":   &cfg.InfluxDB.Token,
		"API_HOST":         &cfg.API.Host,
		"LOG_LEVEL":        &cfg.Logging.Level,
	}
	for name, dst := range strs {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MQTT_PORT": &cfg.MQTT.Broker.Port,
		"API_PORT":  &cfg.API.Port,
	}
	for name, dst := range ints {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"INGEST_ENABLED":   &cfg.Ingest.Enabled,
		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"API_ENABLED":      &cfg.API.Enabled,
	}
	for name, dst := range bools {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Archive validation
	dialect, err := backend.LookupDialect(c.Archive.Backend)
	if err != nil {
		errs = append(errs, fmt.Sprintf("archive.backend %q is not supported", c.Archive.Backend))
	} else {
		switch dialect.Name() {
		case backend.SQLite:
			if c.Archive.Path == "" {
				errs = append(errs, "archive.path is required for sqlite")
			}
		case backend.Postgres, backend.MySQL:
			if c.Archive.DSN == "" {
				errs = append(errs, "archive.dsn is required for "+dialect.Name())
			}
		}
	}
	if c.Archive.InsertChunkSize < 0 {
		errs = append(errs, "archive.insert_chunk_size must not be negative")
	}
	if c.Archive.VacuumInterval < 0 {
		errs = append(errs, "archive.vacuum_interval must not be negative")
	}

	// Reports validation
	seen := make(map[string]bool, len(c.Reports))
	for i, r := range c.Reports {
		switch {
		case r.Memo == "":
			errs = append(errs, fmt.Sprintf("reports[%d].memo is required", i))
		case seen[r.Memo]:
			errs = append(errs, fmt.Sprintf("reports[%d].memo %q is duplicated", i, r.Memo))
		}
		seen[r.Memo] = true
	}

	// Ingest validation
	if c.Ingest.Enabled {
		if c.Ingest.Topic == "" {
			errs = append(errs, "ingest.topic is required")
		}
		if c.Ingest.BatchSize < 1 {
			errs = append(errs, "ingest.batch_size must be at least 1")
		}
		if c.Ingest.FlushInterval < 1 {
			errs = append(errs, "ingest.flush_interval must be at least 1")
		}
	}
	if c.Ingest.QoS < 0 || c.Ingest.QoS > 2 {
		errs = append(errs, "ingest.qos must be 0, 1, or 2")
	}
	if _, err := batch.ParsePolicy(c.Ingest.Policy); err != nil {
		errs = append(errs, fmt.Sprintf("ingest.policy: %v", err))
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "api.rate_limit.requests_per_minute must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetFlushInterval returns the ingest flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Ingest.FlushInterval) * time.Millisecond
}

// GetVacuumInterval returns the vacuum period as a Duration; zero disables vacuum.
func (c *Config) GetVacuumInterval() time.Duration {
	return time.Duration(c.Archive.VacuumInterval) * time.Second
}

// DatabaseConfig returns the storage settings in the form database.Open expects.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Backend:      c.Archive.Backend,
		Path:         c.Archive.Path,
		DSN:          c.Archive.DSN,
		WALMode:      c.Archive.WALMode,
		BusyTimeout:  c.Archive.BusyTimeout,
		MaxOpenConns: c.Archive.MaxOpenConns,
	}
}
