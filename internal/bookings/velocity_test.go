package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestAttemptLimiter_Allow(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewAttemptLimiter(client, 3, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i+1)
	}
	allowed, err := limiter.Allow(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _ = limiter.Allow(ctx, "client-2")
	assert.True(t, allowed, "limits are per client")

	mr.FastForward(time.Hour + time.Second)
	allowed, _ = limiter.Allow(ctx, "client-1")
	assert.True(t, allowed, "window expired")

	require.NoError(t, limiter.Reset(ctx, "client-1"))
}

func TestAttemptLimiter_FailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewAttemptLimiter(client, 1, time.Hour, nil)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAttemptLimiter_Disabled(t *testing.T) {
	limiter := NewAttemptLimiter(nil, 5, time.Hour, nil)
	assert.Nil(t, limiter)
	allowed, err := limiter.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, allowed)
}
