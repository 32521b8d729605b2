// Auth Core - Authentication and Authorisation Service
//
// This is the main entry point for the auth core. It issues and verifies
// the bearer tokens used across the collections platform, resolves roles,
// permissions and organisational scope, and enforces login lockout.
//
// The service is a single binary over SQLite. Redis, MQTT and InfluxDB are
// optional and each is enabled in config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/cashi/auth-core/migrations"

	"github.com/cashi/auth-core/internal/api"
	"github.com/cashi/auth-core/internal/audit"
	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/infrastructure/config"
	"github.com/cashi/auth-core/internal/infrastructure/database"
	"github.com/cashi/auth-core/internal/infrastructure/influxdb"
	"github.com/cashi/auth-core/internal/infrastructure/kvstore"
	"github.com/cashi/auth-core/internal/infrastructure/logging"
	"github.com/cashi/auth-core/internal/infrastructure/metrics"
	"github.com/cashi/auth-core/internal/infrastructure/mqtt"
	"github.com/cashi/auth-core/internal/sessionconfig"
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

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting auth core",
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
	defer log.Close() //nolint:errcheck // closing the log file on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"environment", cfg.Service.Environment,
	)

	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	healthChecks := map[string]api.HealthChecker{"database": db}

	// Redis (optional): shared session config cache
	kv, err := kvstore.Connect(ctx, cfg.Redis)
	switch {
	case errors.Is(err, kvstore.ErrDisabled):
		log.Info("Redis disabled, using in-process session config cache")
	case err != nil:
		return fmt.Errorf("connecting to Redis: %w", err)
	default:
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := kv.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		healthChecks["redis"] = kv
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	// MQTT (optional): security notifications
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	switch {
	case errors.Is(err, mqtt.ErrDisabled):
		log.Info("MQTT disabled")
	case err != nil:
		return fmt.Errorf("connecting to MQTT: %w", err)
	default:
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		healthChecks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// InfluxDB (optional): auth event telemetry
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		healthChecks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	m := metrics.New()

	// Session config: lifetimes and timeouts read at issuance time
	var cache sessionconfig.Cache
	if kv != nil {
		cache = sessionconfig.NewRedisCache(kv.Redis(), kv.KeyPrefix()+"sessioncfg:", cfg.Redis.CacheTTL)
	}
	sessionCfg := sessionconfig.NewProvider(sessionconfig.NewSQLiteStore(db), cache, log)
	if initErr := sessionCfg.InitializeDefaults(ctx); initErr != nil {
		return fmt.Errorf("initialising session config: %w", initErr)
	}

	issuer, err := auth.NewIssuer(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, sessionCfg)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	// Background workers stop after the API server, before the deferred
	// closes above release their dependencies.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		stopBackground()
		wg.Wait()
	}()

	auditRepo := audit.NewSQLiteRepository(db)
	recorder := audit.NewRecorder(auditRepo, audit.DefaultBufferSize, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.Run(bgCtx)
	}()

	events := auth.FanOut(
		recorder,
		metricsSink(m),
		influxSink(influxClient),
		notificationSink(bgCtx, &wg, mqttClient, log),
	)

	service, err := auth.NewService(auth.Deps{
		DB:     db,
		Issuer: issuer,
		Policy: auth.DefaultLockoutPolicy(),
		Events: events,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	sweeper := auth.NewSweeper(service.Tokens(), cfg.Tokens.CleanupInterval, cfg.Tokens.GraceDays, log)
	sweeper.OnPurge(func(deleted int64, at time.Time) {
		m.ObservePurge(deleted)
		if influxClient != nil {
			influxClient.WritePurge(deleted, at)
		}
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(bgCtx)
	}()

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		Logger:        log,
		Auth:          service,
		Roles:         auth.NewRoleRepository(db),
		Permissions:   auth.NewPermissionRepository(db),
		SessionConfig: sessionCfg,
		Audit:         auditRepo,
		Metrics:       m,
		HealthChecks:  healthChecks,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, healthChecks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Background workers (audit recorder, sweeper, notifications)
	// 3. InfluxDB, MQTT, Redis (if enabled)
	// 4. Database

	log.Info("auth core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTHCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTHCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every connected dependency is healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, hc := range checks {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// metricsSink counts auth events by action and outcome.
func metricsSink(m *metrics.Metrics) auth.EventSink {
	return auth.EventSinkFunc(func(_ context.Context, e auth.Event) {
		m.ObserveAuthEvent(e.Action, e.Outcome)
	})
}

// influxSink writes auth events as points. Returns nil when InfluxDB is disabled.
func influxSink(c *influxdb.Client) auth.EventSink {
	if c == nil {
		return nil
	}
	return auth.EventSinkFunc(func(_ context.Context, e auth.Event) {
		c.WriteAuthEvent(e.Action, e.Outcome, e.At)
	})
}

// notificationSink publishes lockouts and forced logouts to MQTT.
// Publishing runs off the request path and is bounded by the client's
// publish timeout. Returns nil when MQTT is disabled.
func notificationSink(ctx context.Context, wg *sync.WaitGroup, c *mqtt.Client, log *logging.Logger) auth.EventSink {
	if c == nil {
		return nil
	}
	topics := c.Topics()
	return auth.EventSinkFunc(func(_ context.Context, e auth.Event) {
		var topic string
		switch e.Action {
		case auth.ActionLockout:
			topic = topics.Lockout()
		case auth.ActionLogoutAll:
			topic = topics.LogoutAll()
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.PublishJSON(topic, e); err != nil {
				log.Warn("security notification failed", "topic", topic, "error", err)
			}
		}()
	})
}
