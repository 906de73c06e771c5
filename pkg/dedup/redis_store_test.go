package dedup_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/dedup"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	client, err := dedup.ConnectRedis(context.Background(), dedup.RedisConfig{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	client := redisClient(t)
	ctx := context.Background()
	prefix := "dedup-test:" + uuid.NewString() + ":"
	store := dedup.NewRedisStore(client, dedup.WithRedisKeyPrefix(prefix), dedup.WithRedisMaxEntries(2))
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})

	base := time.Now().Truncate(time.Millisecond)
	for i, fp := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, dedup.Entry{
			Fingerprint: fp,
			FirstSeenAt: base,
			LastSeenAt:  base.Add(time.Duration(i) * time.Second),
			Count:       1,
		}))
	}

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest evicted")

	got, ok, err := store.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Count)
	assert.True(t, got.LastSeenAt.Equal(base.Add(2*time.Second)))

	removed, err := store.DeleteOlderThan(ctx, base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, "c"))
	require.NoError(t, store.Delete(ctx, "c"))
	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.NoError(t, dedup.RedisHealthcheck(client)(ctx))
}

func TestConnectRedis_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := dedup.ConnectRedis(context.Background(), dedup.RedisConfig{ConnectionURL: "://bad"})
	assert.ErrorIs(t, err, dedup.ErrFailedToParseRedisURL)
}
