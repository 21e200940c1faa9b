package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eugenenazirov/stamp-dispenser/internal/dispenser"
)

// RedisCache stores JSON-encoded results in Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects lazily to the Redis server at addr. A ttl of zero keeps entries forever.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{
		client: rdb,
		ttl:    ttl,
	}
}

// Ping checks connectivity to the Redis server.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Get returns the cached result for key. A missing key is not an error.
func (r *RedisCache) Get(ctx context.Context, key string) (dispenser.Result, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return dispenser.Result{}, false, nil
	}
	if err != nil {
		return dispenser.Result{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var result dispenser.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return dispenser.Result{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return result, true, nil
}

// Set stores result under key.
func (r *RedisCache) Set(ctx context.Context, key string, result dispenser.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
