package inflight

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuard(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g := NewRedis(client, "gastobot:inflight:")
	ctx := context.Background()

	release, err := g.Acquire(ctx, "src-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("gastobot:inflight:src-1"))

	_, err = g.Acquire(ctx, "src-1", time.Minute)
	assert.ErrorIs(t, err, ErrBusy)

	other, err := g.Acquire(ctx, "src-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("gastobot:inflight:src-1"))

	_, err = g.Acquire(ctx, "src-1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisGuardExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	g := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "p:")
	ctx := context.Background()

	stale, err := g.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = g.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("p:k"), "stale release must not drop the new holder")
}

func TestLocalGuard(t *testing.T) {
	g := NewLocal()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	release, err := g.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, release(ctx))
	_, err = g.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = g.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err, "expired holds are taken over")
}
