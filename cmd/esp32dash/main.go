// ESP32 Secure Dashboard - core service
//
// This is the main entry point for the dashboard core. It serves the
// browser-facing REST/WebSocket API, mirrors the device collection out of
// the realtime store, ingests ESP32 telemetry from MQTT, and optionally
// forwards sensor readings to InfluxDB for history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/riyaztrinon/esp32-secure-dashboard/migrations"

	"github.com/riyaztrinon/esp32-secure-dashboard/internal/admin"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/api"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/audit"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/command"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/devcache"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/identity"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/config"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/database"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/influxdb"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/logging"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/infrastructure/mqtt"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/session"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/store"
	"github.com/riyaztrinon/esp32-secure-dashboard/internal/telemetry"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // linear startup sequence: config, db, store, mqtt, influx, api
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting dashboard core",
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Realtime store over the documents table
	st := store.New(db.DB)
	st.SetLogger(log)
	defer st.Close()

	// Identity service and first-boot admin seed
	identityOpts := []identity.ServiceOption{identity.WithLogger(log)}
	if cfg.Security.RateLimit.Enabled {
		identityOpts = append(identityOpts,
			identity.WithRateLimit(cfg.Security.RateLimit.AttemptsPerMinute))
	}
	verifier := identity.NewService(identity.NewRepository(db.DB), identityOpts...)

	seedPassword, err := identity.SeedAdmin(ctx, verifier, st)
	if err != nil {
		return fmt.Errorf("seeding admin account: %w", err)
	}
	if seedPassword != "" {
		log.Warn("seed admin account created",
			"email", identity.SeedAdminEmail,
			"password", seedPassword,
			"action_required", "change this password immediately",
		)
	}

	// Device cache mirrors the devices collection
	cache := devcache.New(st, log)
	if err := cache.Subscribe(); err != nil {
		return fmt.Errorf("subscribing device cache: %w", err)
	}
	defer func() {
		log.Info("unsubscribing device cache")
		cache.Unsubscribe()
	}()
	log.Info("device cache subscribed", "devices", len(cache.Snapshot()))

	// Connect to MQTT broker for device telemetry
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional) for sensor history
	var influxClient *influxdb.Client
	var sensorWriter telemetry.SensorWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sensorWriter = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry ingestion: MQTT device reports into the store
	ingestor := telemetry.New(mqttClient, st, sensorWriter, log)
	if err := ingestor.Start(); err != nil {
		return fmt.Errorf("starting telemetry ingestor: %w", err)
	}
	defer func() {
		log.Info("stopping telemetry ingestor")
		if stopErr := ingestor.Stop(); stopErr != nil {
			log.Error("error stopping telemetry ingestor", "error", stopErr)
		}
	}()
	log.Info("telemetry ingestor started")

	// API server
	sessions := session.NewRegistry(verifier, st, log)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	adminSvc := admin.NewService(verifier, st, auditRepo, log)
	dispatcher := command.NewDispatcher(cache, st, log)
	dispatcher.SetPusher(command.NewMQTTPusher(mqttClient))

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Sessions:   sessions,
		Store:      st,
		Cache:      cache,
		Dispatcher: dispatcher,
		Admin:      adminSvc,
		Audit:      auditRepo,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, telemetry, InfluxDB, MQTT, cache, store, database.

	log.Info("dashboard core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ESPDASH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ESPDASH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// InfluxDB is optional
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
