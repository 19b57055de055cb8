package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucket_AllowsBurstThenDenies(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 0.5, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := bucket.Allow(ctx, "k", 0.5, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, 2*time.Second)

	other, err := bucket.Allow(ctx, "other", 0.5, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestTokenBucket_Refills(t *testing.T) {
	mr, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	mr.SetTime(start)

	res, err := bucket.Allow(ctx, "k", 1, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = bucket.Allow(ctx, "k", 1, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	mr.SetTime(start.Add(1500 * time.Millisecond))
	res, err = bucket.Allow(ctx, "k", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucket_Validation(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidRate)

	var unset *TokenBucket
	_, err = unset.Allow(ctx, "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLocker_SingleHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "lock", "someone-else"))
	assert.True(t, mr.Exists("lock"))

	require.NoError(t, locker.Release(ctx, "lock", token))
	assert.False(t, mr.Exists("lock"))
}

func TestSubscriptionLimiter(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewSubscriptionLimiterWithClient(client, 0.1, 1, time.Minute)
	ctx := context.Background()

	res, err := limiter.AllowCreate(ctx, "7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = limiter.AllowCreate(ctx, "7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	res, err = limiter.AllowCreate(ctx, "8")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.LockOrder(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = limiter.LockOrder(ctx, "7")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, limiter.ReleaseOrder(ctx, "7", token))
	_, ok, err = limiter.LockOrder(ctx, "7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscriptionLimiter_NilAllowsEverything(t *testing.T) {
	var limiter *SubscriptionLimiter
	ctx := context.Background()

	res, err := limiter.AllowCreate(ctx, "7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, ok, err := limiter.LockOrder(ctx, "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleaseOrder(ctx, "7", ""))
}
