package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cashi/auth-core/internal/api"
	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/infrastructure/database"
	"github.com/cashi/auth-core/internal/infrastructure/metrics"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// writeConfig writes a config with every optional dependency disabled.
func writeConfig(t *testing.T, dbPath, secret string, port int) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	content := fmt.Sprintf(`
service:
  name: authcore
  environment: test

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

api:
  host: "127.0.0.1"
  port: %d
  timeouts:
    read: 5
    write: 5
    idle: 5

security:
  jwt:
    secret: %q
    issuer: authcore-test

tokens:
  cleanup_interval: 1h
  grace_days: 30

redis:
  enabled: false

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: warn
  format: text
  output: stdout
`, dbPath, port, secret)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("AUTHCORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ShortSecret verifies run refuses a signing key under 32 characters.
func TestRun_ShortSecret(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "authcore.db")
	t.Setenv("AUTHCORE_JWT_SECRET", "")
	t.Setenv("AUTHCORE_CONFIG", writeConfig(t, dbPath, "too-short", freePort(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with a short JWT secret")
	}
	if !strings.Contains(err.Error(), "jwt.secret") {
		t.Errorf("error = %v, want a jwt.secret validation error", err)
	}
}

// TestRun_StartupAndShutdown starts the service with only SQLite, serves a
// request, and shuts down cleanly when the context ends.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "authcore.db")
	port := freePort(t)
	t.Setenv("AUTHCORE_CONFIG", writeConfig(t, dbPath, testSecret, port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL) //nolint:noctx // test polling
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	// Session config defaults were written on startup.
	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	var rows int
	if err := db.QueryRowContext(t.Context(), `SELECT COUNT(*) FROM session_config`).Scan(&rows); err != nil {
		t.Fatalf("counting session config rows: %v", err)
	}
	if rows != 5 {
		t.Errorf("session config rows = %d, want 5", rows)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("AUTHCORE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("AUTHCORE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

type stubCheck struct{ err error }

func (s stubCheck) HealthCheck(context.Context) error { return s.err }

func TestHealthCheck(t *testing.T) {
	ok := map[string]api.HealthChecker{"database": stubCheck{}, "redis": stubCheck{}}
	if err := healthCheck(t.Context(), ok); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}

	failing := map[string]api.HealthChecker{"database": stubCheck{}, "mqtt": stubCheck{err: errors.New("not connected")}}
	err := healthCheck(t.Context(), failing)
	if err == nil || !strings.HasPrefix(err.Error(), "mqtt:") {
		t.Errorf("healthCheck() error = %v, want mqtt failure", err)
	}
}

func TestOptionalSinks_DisabledAreNil(t *testing.T) {
	if influxSink(nil) != nil {
		t.Error("influxSink(nil) should be nil")
	}
	if notificationSink(t.Context(), nil, nil, nil) != nil {
		t.Error("notificationSink(nil) should be nil")
	}
}

func TestMetricsSink(t *testing.T) {
	m := metrics.New()
	sink := metricsSink(m)

	sink.Record(t.Context(), auth.Event{Action: auth.ActionLogin, Outcome: auth.OutcomeSuccess})
	sink.Record(t.Context(), auth.Event{Action: auth.ActionLogin, Outcome: auth.OutcomeSuccess})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `authcore_auth_events_total{action="LOGIN",outcome="SUCCESS"} 2`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}
