// Usagedeck Console - local companion for the Usagedeck usage dashboard.
//
// This is the main entry point for the console. It runs next to the user's
// browser, holds the backend session in a local SQLite store, and serves the
// dashboard UI over a local HTTP and WebSocket API:
//   - Session persistence across restarts
//   - Tenant-scoped analytics queries against the remote backend
//   - Push updates to every open dashboard tab
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	_ "github.com/usagedeck/usagedeck-console/migrations"

	"github.com/usagedeck/usagedeck-console/internal/api"
	"github.com/usagedeck/usagedeck-console/internal/auth"
	"github.com/usagedeck/usagedeck-console/internal/backend"
	"github.com/usagedeck/usagedeck-console/internal/gateway"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/config"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/database"
	"github.com/usagedeck/usagedeck-console/internal/infrastructure/logging"
	"github.com/usagedeck/usagedeck-console/internal/session"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Usagedeck Console",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Session store backed by SQLite so login survives restarts
	store := session.NewSQLiteStore(db.DB)

	// Outbound transport: rate-limited, credential-attaching, 401-aware
	transport := &gateway.Transport{
		Sessions: store,
		Logger:   log,
	}
	if cfg.Backend.RateLimitRPS > 0 {
		transport.Limiter = rate.NewLimiter(rate.Limit(cfg.Backend.RateLimitRPS), cfg.Backend.RateLimitBurst)
	}

	backendClient := backend.New(cfg.Backend.BaseURL, &http.Client{
		Transport: transport,
		Timeout:   cfg.GetBackendTimeout(),
	})
	log.Info("backend client configured", "base_url", cfg.Backend.BaseURL)

	// Auth controller owns session lifecycle
	controller := auth.NewController(store, backendClient, log)

	// A backend 401 ends the local session immediately
	transport.OnUnauthorized = controller.HandleUnauthorized

	// Restore any persisted session; validation happens in the background
	controller.Restore(ctx)
	log.Info("session restore complete", "state", controller.State())

	// Start the local API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Refresh: cfg.Refresh,
		Logger:  log,
		Auth:    controller,
		Backend: backendClient,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify connections are healthy
	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Database

	log.Info("Usagedeck Console stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses USAGEDECK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("USAGEDECK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure is healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Backend health is deliberately not checked at startup: the console is
	// useful offline with a restored session, and the first analytics fetch
	// surfaces connectivity problems to the UI.

	return nil
}
