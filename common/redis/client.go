package redis

import (
	"context"
	"fmt"
	"time"

	"tankwatch-chart/common/config"

	"github.com/go-redis/redis/v8"
)

const connectTimeout = 5 * time.Second

// Connect builds a client for cfg and pings it. The client is closed again
// when the server does not answer.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Close closes the client; a nil client is ignored.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
