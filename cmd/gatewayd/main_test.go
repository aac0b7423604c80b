package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-gateways/internal/api"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/logging"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// writeConfig writes a minimal SQLite config and returns its path.
func writeConfig(t *testing.T, dbPath string, port int, extra string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`
database:
  driver: sqlite
  path: %q
  wal_mode: true
  busy_timeout: 5

api:
  host: "127.0.0.1"
  port: %d

logging:
  level: error
  format: text
  output: stdout
%s`, dbPath, port, extra)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, "", 8080, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"-config", configPath})
	if err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Fatalf("run() error = %v, want database.path validation error", err)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-bogus"}); err == nil {
		t.Fatal("run() should reject unknown flags")
	}
}

func TestRun_MigrateOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	configPath := writeConfig(t, dbPath, 8080, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", configPath, "-migrate-only"}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestRun_MigrateDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	configPath := writeConfig(t, dbPath, 8080, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", configPath, "-migrate-only"}); err != nil {
		t.Fatalf("run(-migrate-only) error = %v", err)
	}
	if err := run(ctx, []string{"-config", configPath, "-migrate-down"}); err != nil {
		t.Fatalf("run(-migrate-down) error = %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var applied, tables int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 0 {
		t.Errorf("applied migrations = %d, want 0", applied)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'gateways'").Scan(&tables); err != nil {
		t.Fatalf("lookup gateways table: %v", err)
	}
	if tables != 0 {
		t.Error("gateways table survived rollback")
	}
}

func TestRun_MigrateDownUnsupportedDriver(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: postgres
  dsn: "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable"
logging:
  level: error
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := run(context.Background(), []string{"-config", configPath, "-migrate-down"})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("run() error = %v, want unsupported driver error", err)
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	// An unreachable InfluxDB is logged and skipped.
	configPath := writeConfig(t, dbPath, port, `
influxdb:
  enabled: true
  url: "http://127.0.0.1:1"
  org: test
  bucket: test
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", configPath}) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		select {
		case err := <-done:
			t.Fatalf("run() exited early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}

	resp, err := http.Post(base+"/gateways", "application/json",
		strings.NewReader(`{"serial":"GW-001","name":"Lobby","address":"10.0.0.1"}`))
	if err != nil {
		t.Fatalf("create gateway: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create gateway status = %d, want 201", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv(configEnvVar, "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv(configEnvVar, expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestApplyListenAddr(t *testing.T) {
	tests := []struct {
		addr    string
		host    string
		port    int
		wantErr bool
	}{
		{addr: "127.0.0.1:9090", host: "127.0.0.1", port: 9090},
		{addr: ":8081", host: "", port: 8081},
		{addr: "localhost", wantErr: true},
		{addr: "127.0.0.1:0", wantErr: true},
		{addr: "127.0.0.1:http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			cfg := config.APIConfig{Host: "0.0.0.0", Port: 8080}
			err := applyListenAddr(&cfg, tt.addr)
			if tt.wantErr {
				if err == nil {
					t.Errorf("applyListenAddr(%q) should fail", tt.addr)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyListenAddr(%q) error = %v", tt.addr, err)
			}
			if cfg.Host != tt.host || cfg.Port != tt.port {
				t.Errorf("cfg = %s:%d, want %s:%d", cfg.Host, cfg.Port, tt.host, tt.port)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv(configEnvVar, "")

	opts, err := parseFlags([]string{"-migrate-only"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if !opts.migrateOnly || opts.configPath != defaultConfigPath {
		t.Errorf("opts = %+v", opts)
	}

	if _, err := parseFlags([]string{"-migrate-only", "-migrate-down"}, io.Discard); err == nil {
		t.Error("parseFlags() should reject -migrate-only with -migrate-down")
	}
}

func TestHealthCheck(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("down") })
	log := logging.Default()

	if err := healthCheck(context.Background(), ok, ok, map[string]api.HealthChecker{"mqtt": down}, log); err != nil {
		t.Errorf("sink failure should not be fatal: %v", err)
	}
	if err := healthCheck(context.Background(), down, ok, nil, log); err == nil || !strings.Contains(err.Error(), "database") {
		t.Errorf("store failure error = %v", err)
	}
	if err := healthCheck(context.Background(), ok, down, nil, log); err == nil || !strings.Contains(err.Error(), "api") {
		t.Errorf("api failure error = %v", err)
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
