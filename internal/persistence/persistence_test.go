package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/subscription-reconciler/internal/config"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{
		DSN:            "postgres://app:pw@db.internal:5432/lms?sslmode=disable",
		MaxConns:       12,
		MinConns:       1,
		ConnMaxIdleSec: 30,
		ConnMaxLifeSec: 300,
	}, "subscription-reconciler")
	require.NoError(t, err)

	assert.Equal(t, int32(12), cfg.MaxConns)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, 30*time.Second, cfg.MaxConnIdleTime)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, "db.internal", cfg.ConnConfig.Host)
	assert.Equal(t, "subscription-reconciler", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigKeepsExplicitApplicationName(t *testing.T) {
	cfg, err := poolConfig(config.PostgresConfig{
		DSN: "postgres://app@localhost/lms?application_name=cron-box",
	}, "subscription-reconciler")
	require.NoError(t, err)
	assert.Equal(t, "cron-box", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfigRejectsBadDSN(t *testing.T) {
	_, err := poolConfig(config.PostgresConfig{DSN: "postgres://%zz"}, "")
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(config.RedisConfig{
		Addr:           "cache:6379",
		DB:             2,
		PoolSize:       16,
		TimeoutSeconds: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 16, opts.PoolSize)
	assert.Equal(t, 4*time.Second, opts.ReadTimeout)

	opts, err = redisOptions(config.RedisConfig{URL: "redis://:secret@claims:6380/3", Addr: "ignored:1"})
	require.NoError(t, err)
	assert.Equal(t, "claims:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = redisOptions(config.RedisConfig{URL: "http://not-redis"})
	assert.Error(t, err)
}
