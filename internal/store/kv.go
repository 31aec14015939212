package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// KV is the subset of Redis the location lock relies on.
type KV interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// DeleteIfEqual removes key only while it still holds value.
	DeleteIfEqual(ctx context.Context, key string, value string) (bool, error)
}

type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

var _ KV = (*RedisKV)(nil)

func (r *RedisKV) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return r.c.SetNX(ctx, key, value, ttl).Result()
}

var deleteIfEqualScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (r *RedisKV) DeleteIfEqual(ctx context.Context, key string, value string) (bool, error) {
	n, err := deleteIfEqualScript.Run(ctx, r.c, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
