package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/raterudder/metersync/pkg/config"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each blob in a redis string key.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to redis and pings it.
func NewRedis(ctx context.Context, cfg config.Redis) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis (addr=%s): %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Get reads the blob at key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return b, nil
}

// Put replaces the blob at key without an expiration.
func (r *RedisStore) Put(ctx context.Context, key string, body []byte) error {
	if err := r.client.Set(ctx, key, body, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
