package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key so several deployments can share a
	// database.
	Prefix string
}

// RedisStore persists values in Redis. Keys never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a client for opts. It does not dial; call Ping to
// verify connectivity.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: opts.Prefix,
	}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

// Get returns the value stored under key or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

// Put stores value under key without a TTL.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Ping checks that Redis answers within timeout.
func (r *RedisStore) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
