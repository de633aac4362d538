/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance to drive boundary refreshes.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/telemetry"
)

const (
	defaultElectionKey     = "slotcast:leader:scheduler"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// renewScript extends the lease only while we still own it.
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// releaseScript deletes the lease only while we still own it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// lockClient is the subset of *redis.Client used for the lease.
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Close() error
}

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ElectionKey     string
	LeaseDuration   time.Duration // lease validity; must exceed RenewalInterval
	RenewalInterval time.Duration // how often leaders renew and followers retry
	InstanceID      string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
	}
}

func (c *ElectionConfig) applyDefaults() {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = defaultRenewalInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
}

// Election manages a Redis lease held by at most one instance.
type Election struct {
	client lockClient
	logger zerolog.Logger
	config ElectionConfig

	mu       sync.RWMutex
	isLeader bool
	cancel   context.CancelFunc
	done     chan struct{}
	leaderCh chan bool
}

// NewElection connects to Redis.
func NewElection(cfg ElectionConfig, logger zerolog.Logger) (*Election, error) {
	cfg.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis for leader election: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.RedisAddr).
		Str("instance_id", cfg.InstanceID).
		Msg("connected to redis for leader election")

	return newElection(client, cfg, logger), nil
}

func newElection(client lockClient, cfg ElectionConfig, logger zerolog.Logger) *Election {
	cfg.applyDefaults()
	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Logger(),
		config:   cfg,
		leaderCh: make(chan bool, 1),
	}
}

// InstanceID identifies this candidate.
func (e *Election) InstanceID() string { return e.config.InstanceID }

// Start campaigns in the background until ctx is cancelled or Stop is called.
func (e *Election) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return errors.New("election already started")
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.logger.Info().
		Str("instance_id", e.config.InstanceID).
		Dur("lease", e.config.LeaseDuration).
		Msg("starting leader election")

	go func() {
		defer close(done)
		e.campaign(ctx)
	}()
	return nil
}

// Stop ends the campaign, releases the lease if held and closes Redis.
func (e *Election) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if e.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.release(ctx); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership lock")
		}
		e.setLeader(false)
	}

	return e.client.Close()
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// LeaderCh receives leadership transitions. An unread transition is
// replaced by the next one.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// Leader returns the instance holding the lease, or "" when none does.
func (e *Election) Leader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	ticker := time.NewTicker(e.config.RenewalInterval)
	defer ticker.Stop()

	e.attempt(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error().Err(err).Msg("leadership attempt failed")
		held = false
	}
	e.setLeader(held)
}

// acquire takes a free lease or renews our own.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := e.client.Eval(ctx, renewScript,
		[]string{e.config.ElectionKey},
		e.config.InstanceID, e.config.LeaseDuration.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) release(ctx context.Context) error {
	if err := e.client.Eval(ctx, releaseScript, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	e.logger.Info().Msg("released leadership lock")
	return nil
}

func (e *Election) setLeader(leader bool) {
	e.mu.Lock()
	if e.isLeader == leader {
		e.mu.Unlock()
		return
	}
	e.isLeader = leader
	e.mu.Unlock()

	id := e.config.InstanceID
	if leader {
		e.logger.Info().Str("instance_id", id).Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "acquired").Inc()
	} else {
		e.logger.Warn().Str("instance_id", id).Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "lost").Inc()
	}

	// Replace an unread state so readers always see the latest one.
	for {
		select {
		case e.leaderCh <- leader:
			return
		default:
			select {
			case <-e.leaderCh:
			default:
			}
		}
	}
}
