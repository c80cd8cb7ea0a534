package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"imagevault/internal/models"
)

type countingLookup struct {
	calls int
	tiers map[string]*models.AccountTier
}

func (c *countingLookup) Lookup(_ context.Context, userID string) (*models.AccountTier, error) {
	c.calls++
	return c.tiers[userID], nil
}

func TestCachedDirectoryWithoutRedis(t *testing.T) {
	next := &countingLookup{tiers: map[string]*models.AccountTier{"u-1": {Name: "Basic", ThumbnailSizes: []int{200}}}}
	dir := NewCachedDirectory(next, nil, time.Minute, zerolog.Nop())
	ctx := context.Background()

	tier, err := dir.Lookup(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "Basic", tier.Name)

	tier, err = dir.Lookup(ctx, "u-2")
	require.NoError(t, err)
	require.Nil(t, tier)

	require.Equal(t, 2, next.calls)
	require.NoError(t, dir.Invalidate(ctx, "u-1"))
}

func TestCachedDirectoryFallsThroughWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingLookup{tiers: map[string]*models.AccountTier{"u-1": {Name: "Premium"}}}
	dir := NewCachedDirectory(next, client, time.Minute, zerolog.Nop())

	tier, err := dir.Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, "Premium", tier.Name)
	require.Equal(t, 1, next.calls)
}

func newMiniredisDirectory(t *testing.T, next TierLookup) (*CachedDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedDirectory(next, client, time.Minute, zerolog.Nop()), mr
}

func TestCachedDirectoryServesHits(t *testing.T) {
	next := &countingLookup{tiers: map[string]*models.AccountTier{
		"u-1": {ID: 2, Name: "Premium", ThumbnailSizes: []int{200, 400}, AllowsOriginal: true},
	}}
	dir, mr := newMiniredisDirectory(t, next)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tier, err := dir.Lookup(ctx, "u-1")
		require.NoError(t, err)
		require.Equal(t, &models.AccountTier{ID: 2, Name: "Premium", ThumbnailSizes: []int{200, 400}, AllowsOriginal: true}, tier)
	}
	require.Equal(t, 1, next.calls)
	require.True(t, mr.Exists("tier:user:u-1"))
	require.Equal(t, time.Minute, mr.TTL("tier:user:u-1"))

	mr.FastForward(2 * time.Minute)
	_, err := dir.Lookup(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestCachedDirectoryCachesUnsubscribed(t *testing.T) {
	next := &countingLookup{tiers: map[string]*models.AccountTier{}}
	dir, _ := newMiniredisDirectory(t, next)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tier, err := dir.Lookup(ctx, "u-9")
		require.NoError(t, err)
		require.Nil(t, tier)
	}
	require.Equal(t, 1, next.calls)
}

func TestCachedDirectoryReplacesCorruptEntry(t *testing.T) {
	next := &countingLookup{tiers: map[string]*models.AccountTier{"u-1": {Name: "Basic"}}}
	dir, mr := newMiniredisDirectory(t, next)
	require.NoError(t, mr.Set("tier:user:u-1", "{not json"))

	tier, err := dir.Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, "Basic", tier.Name)
	require.Equal(t, 1, next.calls)

	raw, err := mr.Get("tier:user:u-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"subscribed":true,"tier":{"ID":0,"Name":"Basic","ThumbnailSizes":null,"AllowsOriginal":false,"AllowsExpiringLinks":false}}`, raw)
}

func TestCachedDirectoryInvalidate(t *testing.T) {
	next := &countingLookup{tiers: map[string]*models.AccountTier{"u-1": {Name: "Basic"}}}
	dir, mr := newMiniredisDirectory(t, next)
	ctx := context.Background()

	_, err := dir.Lookup(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("tier:user:u-1"))

	require.NoError(t, dir.Invalidate(ctx, "u-1"))
	require.False(t, mr.Exists("tier:user:u-1"))

	next.tiers["u-1"] = &models.AccountTier{Name: "Premium"}
	tier, err := dir.Lookup(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "Premium", tier.Name)
	require.Equal(t, 2, next.calls)
}
