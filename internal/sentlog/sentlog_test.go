package sentlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLog(rdb, time.Hour), mr
}

func TestMarkAndQueryDelivered(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	seen, err := log.Delivered(ctx, 1, 42)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, log.MarkDelivered(ctx, 1, 42))

	seen, err = log.Delivered(ctx, 1, 42)
	require.NoError(t, err)
	assert.True(t, seen)

	// Other campaigns and other customers are unaffected.
	seen, err = log.Delivered(ctx, 2, 42)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = log.Delivered(ctx, 1, 43)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMarkDeliveredSetsTTL(t *testing.T) {
	log, mr := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.MarkDelivered(ctx, 7, 1))
	assert.Equal(t, time.Hour, mr.TTL("campaign:7:delivered"))

	mr.FastForward(2 * time.Hour)
	seen, err := log.Delivered(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, seen, "entries expire with the TTL")
}

func TestClear(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	require.NoError(t, log.MarkDelivered(ctx, 3, 10))
	require.NoError(t, log.MarkDelivered(ctx, 3, 11))
	require.NoError(t, log.Clear(ctx, 3))

	seen, err := log.Delivered(ctx, 3, 10)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNilLogIsInert(t *testing.T) {
	var log *RedisLog
	ctx := context.Background()

	require.NoError(t, log.MarkDelivered(ctx, 1, 1))
	seen, err := log.Delivered(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, log.Clear(ctx, 1))
}
