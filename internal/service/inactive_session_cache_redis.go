package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisInactiveSessionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisInactiveSessionCache(client redis.UniversalClient, prefix string) *RedisInactiveSessionCache {
	if prefix == "" {
		prefix = "inactive_session"
	}
	return &RedisInactiveSessionCache{client: client, prefix: prefix}
}

func (c *RedisInactiveSessionCache) IsInactive(ctx context.Context, sessionID uint) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisInactiveSessionCache) MarkInactive(ctx context.Context, sessionID uint, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(sessionID), "1", ttl).Err()
}

func (c *RedisInactiveSessionCache) key(sessionID uint) string {
	return fmt.Sprintf("%s:%d", c.prefix, sessionID)
}
