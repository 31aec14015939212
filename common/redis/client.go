package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/common/config"

	"github.com/go-redis/redis/v8"
)

type Client = redis.Client

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = time.Second
)

// NewRedisClient keeps socket timeouts short: lock acquisition and stream
// appends sit on the ingestion path.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}

// Connect returns a client only once it answers PING; the client is closed
// otherwise.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := NewRedisClient(cfg)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return client, nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
