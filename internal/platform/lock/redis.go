package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only when it still holds our token, so a
// lock that expired and was re-acquired elsewhere is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker built on SET NX PX with a token-checked release.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	prefix string
	logger zerolog.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithRetryInterval sets how long Acquire sleeps between attempts.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// WithPrefix namespaces every key.
func WithPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

// NewRedis returns a Redis locker whose locks expire after ttl and whose
// Acquire gives up after wait.
func NewRedis(client *redis.Client, ttl, wait time.Duration, logger zerolog.Logger, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		prefix: "clinic:lock:",
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	fullKey := r.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be cancelled; release on a
			// fresh one bounded by the lock ttl.
			releaseCtx, cancel := context.WithTimeout(context.Background(), r.ttl)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Err(); err != nil {
				r.logger.Warn().Err(err).Str("key", fullKey).Msg("release lock")
			}
		})
	}, nil
}
