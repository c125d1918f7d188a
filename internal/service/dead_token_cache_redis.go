package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/security"
)

// RedisDeadTokenCache shares dead-token knowledge across server
// processes. Keys are token digests so raw credentials never land in
// Redis.
type RedisDeadTokenCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDeadTokenCache(client redis.UniversalClient, prefix string) *RedisDeadTokenCache {
	if prefix == "" {
		prefix = "dead_tokens"
	}
	return &RedisDeadTokenCache{client: client, prefix: prefix}
}

func (c *RedisDeadTokenCache) Get(ctx context.Context, token string) (RejectReason, bool, error) {
	if c.client == nil {
		return "", false, nil
	}
	val, err := c.client.Get(ctx, c.key(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return RejectReason(val), true, nil
}

func (c *RedisDeadTokenCache) Set(ctx context.Context, token string, reason RejectReason, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(token), string(reason), ttl).Err()
}

func (c *RedisDeadTokenCache) key(token string) string {
	return fmt.Sprintf("%s:%s", c.prefix, security.HashToken(token))
}
