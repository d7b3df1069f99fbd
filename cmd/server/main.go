/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tab ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load TAB_* environment configuration, then apply flag overrides
  2. Build the zap logger
  3. Open the SQLite store
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

ENVIRONMENT (see config/config.go):
  TAB_ADDR             Listen address (default :8080)
  TAB_DB_PATH          SQLite database path (default ./data/tab.db)
  TAB_LOG_LEVEL        debug, info, warn, error (default info)
  TAB_TIMEZONE         IANA zone months are cut in (default UTC)
  TAB_DUST_THRESHOLD   Debtor totals at or below this are ignored (default 0.005)
  TAB_CORS_ORIGINS     Comma-separated allowed origins (default *)
  TAB_RATE_LIMIT       Requests per minute per client IP, 0 disables (default 600)
  TAB_SHUTDOWN_TIMEOUT Grace period for in-flight requests (default 10s)

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -db      SQLite database path. Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections (errgroup cancels on signal or listen error)
  2. Wait for active requests to complete
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tab.db"

  # Run with in-memory database and debug logs
  TAB_LOG_LEVEL=debug ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/tab-ledger/api"
	"github.com/warp/tab-ledger/config"
	"github.com/warp/tab-ledger/ledger"
	"github.com/warp/tab-ledger/observability"
	"github.com/warp/tab-ledger/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides TAB_ADDR)")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	if *port != 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}
	cfg.DBPath = *dbPath

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	dust, err := cfg.Dust()
	if err != nil {
		return err
	}

	// Initialize store
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Clock:         ledger.SystemClock{Location: loc},
		Location:      loc,
		DustThreshold: &dust,
		Metrics:       observability.NewMetrics(),
		Logger:        logger,
	})

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		RequestsPerMinute: cfg.RateLimit,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("db", cfg.DBPath),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
