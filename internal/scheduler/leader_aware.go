/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/events"
)

// Runner is a loop that runs until its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Elector reports leadership of this instance.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
	InstanceID() string
}

// LeaderAware runs a Runner only while this instance is the leader.
type LeaderAware struct {
	runner   Runner
	election Elector
	bus      *events.Bus
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running chan struct{}
	monitor chan struct{}
}

// NewLeaderAware creates a leader-aware wrapper. bus may be nil.
func NewLeaderAware(runner Runner, election Elector, bus *events.Bus, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		runner:   runner,
		election: election,
		bus:      bus,
		logger:   logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the election and follows leadership changes until ctx is
// cancelled.
func (la *LeaderAware) Start(ctx context.Context) error {
	la.logger.Info().Msg("starting leader-aware scheduler")

	if err := la.election.Start(ctx); err != nil {
		return err
	}

	la.mu.Lock()
	la.ctx = ctx
	la.monitor = make(chan struct{})
	monitor := la.monitor
	la.mu.Unlock()

	go func() {
		defer close(monitor)
		la.monitorLeadership(ctx)
	}()
	return nil
}

// Stop halts the runner and releases leadership.
func (la *LeaderAware) Stop() error {
	la.logger.Info().Msg("stopping leader-aware scheduler")
	la.stopRunner()
	return la.election.Stop()
}

// IsLeader returns whether this instance is the leader.
func (la *LeaderAware) IsLeader() bool {
	return la.election.IsLeader()
}

// Running reports whether the runner is active.
func (la *LeaderAware) Running() bool {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.running != nil
}

func (la *LeaderAware) monitorLeadership(ctx context.Context) {
	leaderCh := la.election.LeaderCh()

	if la.election.IsLeader() {
		la.startRunner()
	}

	for {
		select {
		case <-ctx.Done():
			la.stopRunner()
			return
		case isLeader := <-leaderCh:
			la.publish(isLeader)
			if isLeader {
				la.logger.Info().Msg("became leader, starting scheduler")
				la.startRunner()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping scheduler")
				la.stopRunner()
			}
		}
	}
}

func (la *LeaderAware) startRunner() {
	la.mu.Lock()
	defer la.mu.Unlock()
	if la.running != nil {
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	done := make(chan struct{})
	la.cancel = cancel
	la.running = done

	go func() {
		defer close(done)
		la.logger.Info().Msg("scheduler started")
		if err := la.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			la.logger.Error().Err(err).Msg("scheduler error")
		}
		la.logger.Info().Msg("scheduler stopped")
	}()
}

// stopRunner cancels the runner and waits for it to return.
func (la *LeaderAware) stopRunner() {
	la.mu.Lock()
	cancel, done := la.cancel, la.running
	la.cancel, la.running = nil, nil
	la.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (la *LeaderAware) publish(isLeader bool) {
	if la.bus == nil {
		return
	}
	la.bus.Publish(events.EventLeaderChanged, events.Payload{
		"instance_id": la.election.InstanceID(),
		"leader":      isLeader,
	})
}
