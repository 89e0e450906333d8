package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// redisTestLocker skips unless SWAPGRAPH_REDIS_ADDR points at a server.
func redisTestLocker(t *testing.T, opts RedisOptions) *Redis {
	t.Helper()
	addr := os.Getenv("SWAPGRAPH_REDIS_ADDR")
	if addr == "" {
		t.Skip("SWAPGRAPH_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	if opts.Prefix == "" {
		opts.Prefix = "swapgraph:test:" + t.Name() + ":"
	}
	return NewRedis(client, opts)
}

func TestRedis_ExclusiveAcrossLockers(t *testing.T) {
	a := redisTestLocker(t, RedisOptions{MaxWait: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	b := NewRedis(a.client, a.opts)
	ctx := context.Background()

	unlock, err := a.Lock(ctx, CycleKey("c1"))
	require.NoError(t, err)

	_, err = b.Lock(ctx, CycleKey("c1"))
	require.Error(t, err)
	assert.Equal(t, swaperr.ReasonLockUnavailable, swaperr.ReasonOf(err))

	unlock()
	unlock2, err := b.Lock(ctx, CycleKey("c1"))
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseOnlyOwnToken(t *testing.T) {
	l := redisTestLocker(t, RedisOptions{TTL: 50 * time.Millisecond, MaxWait: time.Second})
	ctx := context.Background()

	staleUnlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	time.Sleep(80 * time.Millisecond)

	freshUnlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	staleUnlock()
	val, err := l.client.Get(ctx, l.opts.Prefix+"k").Result()
	require.NoError(t, err)
	assert.NotEmpty(t, val, "expired holder must not delete the new holder's lock")
	freshUnlock()
}
