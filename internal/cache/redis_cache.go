package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shiftbook/backend/internal/domain"
)

type RedisAggregateCache struct {
	client *redis.Client
}

func NewRedisAggregateCache(addr string, password string, db int) *RedisAggregateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAggregateCache{client: client}
}

func (c *RedisAggregateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAggregateCache) Close() error {
	return c.client.Close()
}

func (c *RedisAggregateCache) Get(ctx context.Context, key string) (*domain.ShiftAggregate, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var agg domain.ShiftAggregate
	if err := json.Unmarshal([]byte(val), &agg); err != nil {
		return nil, false, err
	}
	return &agg, true, nil
}

func (c *RedisAggregateCache) Set(ctx context.Context, key string, value *domain.ShiftAggregate, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisAggregateCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
