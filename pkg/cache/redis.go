package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisClient is the subset of *redis.Client the cache uses
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis is a Cache backed by Redis. Every call goes through a circuit breaker
// so an unavailable Redis fails fast instead of stalling requests.
type Redis struct {
	client RedisClient
	cb     *gobreaker.CircuitBreaker
	prefix string
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps client. Keys are namespaced with prefix.
func NewRedis(client RedisClient, cb *gobreaker.CircuitBreaker, prefix string) *Redis {
	return &Redis{client: client, cb: cb, prefix: prefix}
}

// NewRedisClient connects to addr and pings it
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, r.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if res == nil {
		return nil, false, nil
	}
	return res.([]byte), true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.prefix+key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.prefix + k
	}

	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.client.Del(ctx, prefixed...).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to delete keys from redis: %w", err)
	}
	return nil
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.client.Incr(ctx, r.prefix+key).Result()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s in redis: %w", key, err)
	}
	return res.(int64), nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
