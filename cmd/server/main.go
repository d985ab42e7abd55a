/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the finance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, environment, flags)
  2. Initialize logger
  3. Open the store (SQLite or PostgreSQL)
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION (flag / env, flags win):
  -port          PORT           HTTP server port (default: 8080)
  -driver        DB_DRIVER      sqlite or postgres (default: sqlite)
  -db            DB_PATH        SQLite database path (default: finance.db)
                                Use ":memory:" for in-memory database
  -database-url  DATABASE_URL   PostgreSQL URL, migrated on startup
  -log-level     LOG_LEVEL      debug, info, warn, error (default: info)
  -log-pretty    LOG_PRETTY     Console output instead of JSON
  -scenarios     ENABLE_SCENARIOS  Mount /api/scenarios
                 JWT_SECRET     HS256 signing key
                 JWT_TTL        Session lifetime (default: 24h)
                 ALLOW_ORIGINS  Comma-separated CORS origins

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/finance.db"

  # Run against PostgreSQL with demo scenarios
  DATABASE_URL=postgres://localhost/finance ./server -driver=postgres -scenarios

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Stores
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/finance-engine/api"
	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/config"
	"github.com/warp/finance-engine/logger"
	"github.com/warp/finance-engine/store/postgres"
	"github.com/warp/finance-engine/store/sqlite"
)

// store is what the server needs from either backend.
type store interface {
	api.Store
	Close() error
}

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if cfg.InsecureSecret {
		log.Warn().Msg("JWT_SECRET is not set; using the development secret")
	}

	// Initialize store
	st, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize database")
	}
	defer st.Close()

	// Initialize handler
	handler, err := api.NewHandler(st, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize handler")
	}

	// Create router
	router := api.NewRouter(handler, api.Options{
		AllowOrigins:    cfg.AllowOrigins,
		Log:             log,
		EnableScenarios: cfg.EnableScenarios,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.DBDriver).
			Bool("scenarios", cfg.EnableScenarios).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
