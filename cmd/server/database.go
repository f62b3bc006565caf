package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/mediagen/internal/config"
	"github.com/phrazzld/mediagen/internal/platform/memory"
	"github.com/phrazzld/mediagen/internal/platform/postgres"
	"github.com/phrazzld/mediagen/internal/platform/redis"
	"github.com/phrazzld/mediagen/internal/store"
)

// Store backends
const (
	storeBackendPostgres = "postgres"
	storeBackendRedis    = "redis"
	storeBackendMemory   = "memory"
)

// openDatabase opens and pings a pgx-backed *sql.DB.
func openDatabase(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}

// newTaskStore builds the configured task store. The returned close func
// releases its connections.
func newTaskStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.TaskStore, func() error, error) {
	switch cfg.Backend {
	case storeBackendPostgres:
		db, err := openDatabase(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewPostgresTaskStore(db), db.Close, nil

	case storeBackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := redis.NewTaskStore(client, redis.WithLogger(logger))

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("redis connection established", "addr", cfg.RedisAddr)
		return s, client.Close, nil

	case storeBackendMemory:
		logger.Warn("using in-memory task store, tasks are lost on restart")
		return memory.NewTaskStore(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
