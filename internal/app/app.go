// Package app wires configuration into the storage, queue and service
// components shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"campus/internal/attendance"
	"campus/internal/config"
	"campus/internal/httpmiddleware"
	"campus/internal/queue"
	"campus/internal/store"
)

const queueKey = "campus:meetings:jobs"

// Deps holds the long-lived connections of a process.
type Deps struct {
	DB      *store.DB
	Redis   *store.Redis
	Queue   queue.Queue
	Service *attendance.Service
}

// Open connects the configured backends and builds the attendance service.
func Open(ctx context.Context, cfg config.App) (*Deps, error) {
	d := &Deps{}
	var err error
	switch cfg.StoreBackend {
	case "sqlite":
		d.DB, err = store.NewSQLite(ctx, cfg.SQLitePath)
	default:
		d.DB, err = store.NewDB(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, d.DB); err != nil {
			d.DB.Close()
			return nil, err
		}
	}

	if needsRedis(cfg) {
		d.Redis = store.NewRedis(cfg.RedisAddr)
		if !d.Redis.Healthy(ctx) {
			slog.Warn("redis not reachable at startup", "addr", cfg.RedisAddr)
		}
	}

	if cfg.QueueBackend == "memory" {
		d.Queue = queue.NewInMemory(64)
	} else {
		d.Queue = queue.NewRedisQueue(d.Redis.Client, queueKey)
	}

	opts := []attendance.Option{
		attendance.WithRules(cfg.Rules()),
		attendance.WithTimeout(cfg.StorageTimeout),
		attendance.WithLogger(slog.Default()),
	}
	switch cfg.LockBackend {
	case "memory":
		opts = append(opts, attendance.WithLocker(attendance.NewKeyedMutex()))
	case "redis":
		opts = append(opts, attendance.WithLocker(store.NewLock(d.Redis.Client, cfg.LockTTL)))
	}
	d.Service = attendance.NewService(attendance.NewSQLRepository(d.DB.Client), opts...)
	return d, nil
}

// Limiter returns the configured rate limiter.
func (d *Deps) Limiter(cfg config.App) httpmiddleware.Limiter {
	if cfg.RateLimitBackend == "redis" && d.Redis != nil {
		return httpmiddleware.NewRedisWindow(d.Redis.Client, cfg.RateLimitPerMin)
	}
	return httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
}

// Health reports the reachability of each backend in use.
func (d *Deps) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{"db": d.DB.Healthy(ctx)}
	if d.Redis != nil {
		out["redis"] = d.Redis.Healthy(ctx)
	}
	return out
}

// Close releases all connections.
func (d *Deps) Close() {
	if err := d.DB.Close(); err != nil {
		slog.Warn("close db", "error", err)
	}
	if err := d.Redis.Close(); err != nil {
		slog.Warn("close redis", "error", err)
	}
}

func needsRedis(cfg config.App) bool {
	return cfg.QueueBackend == "redis" || cfg.LockBackend == "redis" || cfg.RateLimitBackend == "redis"
}
