package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/swaperr"
)

// releaseScript deletes a lock only if it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = token set by the holder
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	// Prefix namespaces lock keys, e.g. "swapgraph:lock:".
	Prefix string
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryInterval is the pause between SET NX attempts.
	RetryInterval time.Duration
	// MaxWait is how long Lock waits for one key before giving up.
	MaxWait time.Duration
}

// Redis is a Locker for deployments with several processes sharing one
// store. Each key is a SET NX PX entry holding a random token; release is
// a compare-and-delete script so a holder never frees someone else's lock.
type Redis struct {
	client redis.UniversalClient
	opts   RedisOptions
}

// NewRedis wraps a client. Zero options get defaults.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "swapgraph:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	return &Redis{client: client, opts: opts}
}

// NewRedisClient creates a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Lock acquires every key or none. A key still held by another process
// after MaxWait yields a conflict with reason lock_unavailable.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	for _, key := range keys {
		if err := r.acquire(ctx, r.opts.Prefix+key, token); err != nil {
			r.release(held, token)
			return nil, err
		}
		held = append(held, r.opts.Prefix+key)
	}
	return func() { r.release(held, token) }, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(r.opts.MaxWait)
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return swaperr.Conflict(swaperr.ReasonLockUnavailable, "lock %s is held by another process", key)
		}

		timer := time.NewTimer(r.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// release runs with a fresh context so a cancelled caller still frees
// its keys.
func (r *Redis) release(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		_ = releaseScript.Run(ctx, r.client, []string{keys[i]}, token).Err()
	}
}
