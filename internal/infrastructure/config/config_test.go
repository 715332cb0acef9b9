package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
archive:
  backend: sqlite
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
  default_priority: 10
reports:
  - memo: synop
    description: "Synoptic land stations"
    priority: 101
  - memo: temp
    priority: 400
ingest:
  enabled: true
  topic: "obs/#"
  batch_size: 50
  flush_interval: 250
  policy: ignore
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Archive.Path != "/tmp/test.db" {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, "/tmp/test.db")
	}
	if cfg.Archive.DefaultPriority != 10 {
		t.Errorf("Archive.DefaultPriority = %d, want 10", cfg.Archive.DefaultPriority)
	}
	if len(cfg.Reports) != 2 || cfg.Reports[1].Memo != "temp" || cfg.Reports[1].Priority != 400 {
		t.Errorf("Reports = %+v", cfg.Reports)
	}
	if cfg.Ingest.Topic != "obs/#" {
		t.Errorf("Ingest.Topic = %q, want %q", cfg.Ingest.Topic, "obs/#")
	}
	if got := cfg.GetFlushInterval(); got != 250*time.Millisecond {
		t.Errorf("GetFlushInterval() = %v, want 250ms", got)
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}

	// Defaults survive for sections the file leaves out
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Archive.InsertChunkSize != 200 {
		t.Errorf("Archive.InsertChunkSize = %d, want 200", cfg.Archive.InsertChunkSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
archive:
  backend: oracle
reports:
  - memo: synop
  - memo: synop
api:
  port: 0
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"archive.backend", "duplicated", "api.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
archive:
  path: "/tmp/from-file.db"
`)

	t.Setenv("OBSARCHIVE_ARCHIVE_PATH", "/tmp/from-env.db")
	t.Setenv("OBSARCHIVE_API_PORT", "9090")
	t.Setenv("OBSARCHIVE_INGEST_ENABLED", "true")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Archive.Path != "/tmp/from-env.db" {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, "/tmp/from-env.db")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if !cfg.Ingest.Enabled {
		t.Error("Ingest.Enabled = false, want true")
	}
}

func TestLoad_InvalidEnvOverride(t *testing.T) {
	configPath := writeConfig(t, "archive:\n  path: /tmp/x.db\n")
	t.Setenv("OBSARCHIVE_API_PORT", "not-a-number")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for non-numeric port, got nil")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	configPath := writeConfig(t, "archive:\n  backend: postgres\n")

	// Register the variable so t.Setenv restores it after godotenv sets it
	t.Setenv("OBSARCHIVE_ARCHIVE_DSN", "")
	os.Unsetenv("OBSARCHIVE_ARCHIVE_DSN") //nolint:errcheck // Test setup

	dotenv := filepath.Join(filepath.Dir(configPath), ".env")
	if err := os.WriteFile(dotenv, []byte("OBSARCHIVE_ARCHIVE_DSN=postgres://archive@localhost/obs\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Archive.DSN != "postgres://archive@localhost/obs" {
		t.Errorf("Archive.DSN = %q, want value from .env", cfg.Archive.DSN)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"sqlite without path", func(c *Config) { c.Archive.Path = "" }, "archive.path"},
		{"postgres without dsn", func(c *Config) { c.Archive.Backend = "postgres" }, "archive.dsn"},
		{"duckdb", func(c *Config) { c.Archive.Backend = "duckdb" }, ""},
		{"empty memo", func(c *Config) { c.Reports = []ReportConfig{{Priority: 1}} }, "reports[0].memo"},
		{"bad policy", func(c *Config) { c.Ingest.Policy = "merge" }, "ingest.policy"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"ingest batch", func(c *Config) { c.Ingest.Enabled = true; c.Ingest.BatchSize = 0 }, "ingest.batch_size"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"rate limit", func(c *Config) { c.API.RateLimit.RequestsPerMinute = 0 }, "requests_per_minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Archive.MaxOpenConns = 4

	db := cfg.DatabaseConfig()
	if db.Backend != "sqlite" || db.Path != cfg.Archive.Path || !db.WALMode || db.MaxOpenConns != 4 {
		t.Errorf("DatabaseConfig() = %+v", db)
	}
}

func TestTimeouts(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != time.Minute {
		t.Errorf("GetIdleTimeout() = %v, want 1m", got)
	}
	if got := cfg.GetVacuumInterval(); got != time.Hour {
		t.Errorf("GetVacuumInterval() = %v, want 1h", got)
	}
}
