// Package cache wraps the Redis client used for scheduler job locks and
// batch-collect progress snapshots.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
)

// NewClient creates a Redis client and verifies connectivity
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// Lock acquires a named lock with a TTL. Returns false when another
// holder has it. Used to key scheduled jobs by job id so two processes
// never run the same job concurrently.
func Lock(ctx context.Context, client *redis.Client, name string, ttl time.Duration) (bool, error) {
	ok, err := client.SetNX(ctx, "lock:"+name, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// Unlock releases a named lock
func Unlock(ctx context.Context, client *redis.Client, name string) error {
	if err := client.Del(ctx, "lock:"+name).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
