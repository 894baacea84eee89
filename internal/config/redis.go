package config

// This file defines a Redis client constructor for the simulator's
// hold-expiry store.  If the connection cannot be established the
// function returns nil and callers degrade gracefully by keeping hold
// expirations in memory only.

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from the loaded Config.
// It returns nil when no address is configured or when the server does
// not answer a ping within two seconds; a nil client disables
// persistence without failing startup.
func NewRedisClient(cfg Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
