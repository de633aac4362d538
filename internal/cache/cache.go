/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache shares evaluated schedule activity between instances
// through Redis, so an hour bucket is evaluated once per deployment.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/telemetry"
)

// KeyActivity prefixes snapshot keys: + snapshot key + ":" + bucket start (unix ms).
const KeyActivity = "slotcast:cache:activity:"

// MinTTL bounds the expiry of snapshots written near a bucket's end.
const MinTTL = time.Second

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Fallback behavior
	DisableOnError bool // If true, stop using Redis after the first error
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		DisableOnError: true,
	}
}

// Cache stores activity snapshots in Redis with graceful fallback. A
// disabled cache reports every lookup as a miss and drops every write.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config
	now    func() time.Time

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New connects to Redis. An unreachable server yields a disabled cache
// rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	logger = logger.With().Str("component", "snapshot_cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, snapshots stay local")
		return &Cache{logger: logger, config: cfg, now: time.Now, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("snapshot cache connected")
	return &Cache{client: client, logger: logger, config: cfg, now: time.Now}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	telemetry.SnapshotStoreOpsTotal.WithLabelValues(operation, "error").Inc()
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling snapshot cache due to redis error")
	}
}

// ActivityKey returns the Redis key of a bucket's snapshot.
func ActivityKey(key string, validAfter time.Time) string {
	return fmt.Sprintf("%s%s:%d", KeyActivity, key, validAfter.UnixMilli())
}

// GetActivity returns the snapshot evaluated for the bucket starting at
// validAfter, if another instance already stored one.
func (c *Cache) GetActivity(ctx context.Context, key string, validAfter time.Time) (*schedule.Activity, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, ActivityKey(key, validAfter)).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.SnapshotStoreOpsTotal.WithLabelValues("get", "miss").Inc()
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		return nil, false
	}

	var act schedule.Activity
	if err := json.Unmarshal(data, &act); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("discarding unreadable snapshot")
		return nil, false
	}
	telemetry.SnapshotStoreOpsTotal.WithLabelValues("get", "hit").Inc()
	return &act, true
}

// SetActivity stores a snapshot that expires with its bucket. SET NX keeps
// the first writer's evaluation when instances race.
func (c *Cache) SetActivity(ctx context.Context, key string, validAfter, validUntil time.Time, act *schedule.Activity) error {
	if !c.IsAvailable() || act == nil {
		return nil
	}

	data, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := c.client.SetNX(ctx, ActivityKey(key, validAfter), data, c.ttl(validUntil)).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	telemetry.SnapshotStoreOpsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

func (c *Cache) ttl(validUntil time.Time) time.Duration {
	ttl := validUntil.Sub(c.now())
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// Flush removes every stored snapshot.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}

	c.logger.Warn().Msg("flushing snapshot cache")

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyActivity+"*", 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
