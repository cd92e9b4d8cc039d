package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"jassperfumes/backend/internal/domain"
)

type RedisOverviewCache struct {
	client *redis.Client
}

func NewRedisOverviewCache(addr string, password string, db int) *RedisOverviewCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisOverviewCache{client: client}
}

func (c *RedisOverviewCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOverviewCache) Close() error {
	return c.client.Close()
}

func (c *RedisOverviewCache) Get(ctx context.Context, key string) (*domain.InventoryOverview, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var overview domain.InventoryOverview
	if err := json.Unmarshal([]byte(val), &overview); err != nil {
		return nil, false, err
	}
	return &overview, true, nil
}

func (c *RedisOverviewCache) Set(ctx context.Context, key string, value *domain.InventoryOverview, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisOverviewCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
