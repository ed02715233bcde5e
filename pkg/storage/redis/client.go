package redis

import (
	"context"
	"fmt"
	"time"

	"mdhub/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps a go-redis client for snapshot storage.
type RedisClient struct {
	rdb *redis.Client
}

func NewClient(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{rdb: rdb}, nil
}

// Set stores a value under key with the given TTL.
func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns the value for key. Missing keys return ("", false, nil).
func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisClient) IsHealthy(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
