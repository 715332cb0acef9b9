package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/obsarchive/internal/infrastructure/config"
	"github.com/nerrad567/obsarchive/internal/infrastructure/logging"
)

// writeConfig writes a config file for a SQLite archive in a temp dir and
// points OBSARCHIVE_CONFIG at it.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
archive:
  backend: sqlite
  path: "` + filepath.Join(dir, "archive.db") + `"
  wal_mode: true
  busy_timeout: 5
  vacuum_interval: 0

reports:
  - memo: synop
    description: SYNOP reports
    priority: 101
  - memo: temp
    priority: 400

ingest:
  enabled: false

influxdb:
  enabled: false

api:
  enabled: false
  port: 8080

logging:
  level: error
  format: text
  output: stdout
` + extra
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("OBSARCHIVE_CONFIG", configPath)
	return configPath
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("OBSARCHIVE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidBackend verifies configuration validation stops startup.
func TestRun_InvalidBackend(t *testing.T) {
	writeConfig(t, "")
	t.Setenv("OBSARCHIVE_ARCHIVE_BACKEND", "oracle")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an unsupported backend")
	}
}

// TestRun_CleanShutdown verifies run opens the archive and returns nil once
// the context is cancelled.
func TestRun_CleanShutdown(t *testing.T) {
	writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("OBSARCHIVE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("OBSARCHIVE_CONFIG", "/etc/obsarchive.yaml")
	if got := getConfigPath(); got != "/etc/obsarchive.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/obsarchive.yaml", got)
	}
}

func TestOpenArchive(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	arch, err := openArchive(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("openArchive() error = %v", err)
	}
	defer arch.Close() //nolint:errcheck // Test cleanup

	reports := arch.Reports()
	if len(reports) != 2 || reports[0].Memo != "temp" || reports[1].Memo != "synop" {
		t.Errorf("Reports() = %+v, want temp then synop", reports)
	}
	if err := healthCheck(context.Background(), arch, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
}

func TestOpenArchive_BadVartable(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Archive.VartableFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := openArchive(context.Background(), cfg, testLogger()); err == nil {
		t.Fatal("openArchive() with a missing variable table: expected error")
	}
}

func TestNewIngestService(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	arch, err := openArchive(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("openArchive() error = %v", err)
	}
	defer arch.Close() //nolint:errcheck // Test cleanup

	svc, err := newIngestService(cfg, arch, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("newIngestService() error = %v", err)
	}
	if svc.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", svc.Pending())
	}

	cfg.Ingest.Policy = "merge"
	if _, err := newIngestService(cfg, arch, nil, nil, testLogger()); err == nil {
		t.Error("newIngestService() with an unknown policy: expected error")
	}
}

func TestNewAPIServer(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	arch, err := openArchive(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("openArchive() error = %v", err)
	}
	defer arch.Close() //nolint:errcheck // Test cleanup

	server, err := newAPIServer(cfg, arch, nil, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("newAPIServer() error = %v", err)
	}
	if err := server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start: expected error")
	}
}

func TestVacuumLoop_StopsOnCancel(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	arch, err := openArchive(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("openArchive() error = %v", err)
	}
	defer arch.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		vacuumLoop(ctx, arch, 10*time.Millisecond, testLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("vacuumLoop did not return after cancellation")
	}
}

func TestRunMigrate(t *testing.T) {
	writeConfig(t, "")
	ctx := context.Background()

	var out bytes.Buffer
	if err := runMigrate(ctx, []string{"status"}, &out); err != nil {
		t.Fatalf("runMigrate(status) error = %v", err)
	}
	if !strings.Contains(out.String(), "initial_schema") || !strings.Contains(out.String(), "pending") {
		t.Errorf("fresh status = %q, want a pending migration", out.String())
	}

	out.Reset()
	if err := runMigrate(ctx, []string{"up"}, &out); err != nil {
		t.Fatalf("runMigrate(up) error = %v", err)
	}
	out.Reset()
	if err := runMigrate(ctx, []string{"status"}, &out); err != nil {
		t.Fatalf("runMigrate(status) error = %v", err)
	}
	if strings.Contains(out.String(), "pending") || !strings.Contains(out.String(), "initial_schema") {
		t.Errorf("status after up = %q", out.String())
	}

	out.Reset()
	if err := runMigrate(ctx, []string{"down"}, &out); err != nil {
		t.Fatalf("runMigrate(down) error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "reverted ") {
		t.Errorf("down output = %q", out.String())
	}

	out.Reset()
	if err := runMigrate(ctx, []string{"down"}, &out); err != nil {
		t.Fatalf("second runMigrate(down) error = %v", err)
	}
	if out.String() != "no migration to revert\n" {
		t.Errorf("second down output = %q", out.String())
	}
}

func TestRunMigrate_Usage(t *testing.T) {
	writeConfig(t, "")
	for _, args := range [][]string{nil, {"sideways"}, {"up", "down"}} {
		if err := runMigrate(context.Background(), args, io.Discard); !errors.Is(err, errMigrateUsage) {
			t.Errorf("runMigrate(%q) error = %v, want usage error", args, err)
		}
	}
}
