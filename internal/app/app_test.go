package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/config"
	"campus/internal/httpmiddleware"
	"campus/internal/queue"
)

func sqliteConfig(t *testing.T) config.App {
	cfg := config.Load()
	cfg.StoreBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "campus.db")
	cfg.AutoMigrate = true
	cfg.QueueBackend = "memory"
	cfg.LockBackend = "memory"
	cfg.RateLimitBackend = "memory"
	return cfg
}

func TestOpenSQLiteMemory(t *testing.T) {
	cfg := sqliteConfig(t)
	require.NoError(t, cfg.Validate())

	d, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.Nil(t, d.Redis)
	assert.IsType(t, &queue.InMemory{}, d.Queue)
	assert.IsType(t, &httpmiddleware.SimpleTokenBucket{}, d.Limiter(cfg))
	assert.Equal(t, map[string]bool{"db": true}, d.Health(context.Background()))

	n, err := d.Service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.QueueBackend = "redis"
	cfg.LockBackend = "redis"
	cfg.RateLimitBackend = "redis"

	d, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.IsType(t, &queue.RedisQueue{}, d.Queue)
	assert.IsType(t, &httpmiddleware.RedisWindow{}, d.Limiter(cfg))
	assert.Equal(t, map[string]bool{"db": true, "redis": true}, d.Health(context.Background()))
}
