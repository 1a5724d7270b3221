package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Lock elects a single scanning process when several share one store.
type Lock interface {
	// Acquire returns acquired=false when someone else holds key. release
	// is safe to call only after a successful acquire.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func() error, acquired bool, err error)
}

// NoopLock always succeeds. Used for single-process deployments.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, string, time.Duration) (func() error, bool, error) {
	return func() error { return nil }, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX lock with a TTL.
type RedisLock struct {
	client redis.UniversalClient
}

// NewRedisLock connects to the redis instance at url.
func NewRedisLock(url string) (*RedisLock, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLock{client: redis.NewClient(opts)}, nil
}

// NewRedisLockFromClient wraps an existing client.
func NewRedisLockFromClient(client redis.UniversalClient) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func() error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks connectivity.
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the client connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
