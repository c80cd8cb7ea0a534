package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"imagevault/internal/config"
)

func TestRedisOptionsFromConfig(t *testing.T) {
	opts := redisOptions(config.RedisConfig{
		Addr:         "cache:6379",
		DB:           2,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  time.Second,
		ReadTimeout:  10 * time.Second,
	})

	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 20, opts.PoolSize)
	require.Equal(t, 2, opts.MinIdleConns)
	require.Equal(t, time.Second, opts.DialTimeout)
	require.Equal(t, 10*time.Second, opts.ReadTimeout)

	require.Zero(t, redisOptions(config.RedisConfig{Addr: "cache:6379"}).ReadTimeout)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}
