// Package main implements the entry point for the media generation server,
// which accepts generation tasks over HTTP and runs them when they are polled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/platform/logger"
	"github.com/phrazzld/mediagen/internal/platform/postgres"
)

func main() {
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrate); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context, migrateCommand string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel, Output: os.Stdout})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"store_backend", cfg.Store.Backend,
		"storage_backend", cfg.Storage.Backend)

	if migrateCommand != "" {
		return runMigrations(ctx, cfg, migrateCommand, l)
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// runMigrations applies a goose command to the configured Postgres store.
func runMigrations(ctx context.Context, cfg *config.Config, command string, l *slog.Logger) error {
	if cfg.Store.Backend != storeBackendPostgres {
		return fmt.Errorf("migrations require the postgres store backend, got %q", cfg.Store.Backend)
	}

	db, err := openDatabase(ctx, cfg.Store.DatabaseURL, l)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return postgres.Migrate(ctx, db, command, l)
}
