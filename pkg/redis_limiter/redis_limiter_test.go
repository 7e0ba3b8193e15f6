package redis_limiter

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实Redis，设置 REDIS_ADDR 后运行
func newTestLimiter(t *testing.T, maxConcurrent int, maxWait time.Duration) (*RedisLimiter, string) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	prefix := "test_limit:" + uuid.NewString() + ":"
	l := NewRedisLimiter(client, Options{
		MaxConcurrent: maxConcurrent,
		KeyPrefix:     prefix,
		TTL:           time.Minute,
		MaxWait:       maxWait,
		Logger:        logrus.New(),
	})
	l.minBackoff = 10 * time.Millisecond
	l.maxBackoff = 20 * time.Millisecond
	return l, "model-a"
}

func TestTryAcquireRespectsLimit(t *testing.T) {
	l, key := newTestLimiter(t, 2, time.Second)
	ctx := context.Background()

	require.NoError(t, l.TryAcquire(ctx, key))
	require.NoError(t, l.TryAcquire(ctx, key))
	err := l.TryAcquire(ctx, key)
	assert.True(t, errors.Is(err, ErrLimitReached))

	current, err := l.GetCurrent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, current)

	l.Release(ctx, key)
	l.Release(ctx, key)
	current, err = l.GetCurrent(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l, key := newTestLimiter(t, 1, 2*time.Second)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, key))
	go func() {
		time.Sleep(50 * time.Millisecond)
		l.Release(ctx, key)
	}()

	require.NoError(t, l.Acquire(ctx, key))
	l.Release(ctx, key)
}

func TestAcquireTimesOut(t *testing.T) {
	l, key := newTestLimiter(t, 1, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, key))
	defer l.Release(ctx, key)

	err := l.Acquire(ctx, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLimitReached))
}
