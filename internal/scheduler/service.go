/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler drives resolver rebuilds at bucket boundaries so that
// change events are emitted without waiting for a lookup.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/scheduler/state"
	"github.com/friendsincode/slotcast/internal/telemetry"
)

const (
	// DefaultSettle delays each refresh past the boundary it waits for.
	DefaultSettle = 50 * time.Millisecond
	// DefaultRetention bounds how long transitions are kept.
	DefaultRetention = 24 * time.Hour

	minWait = time.Second
)

// Service refreshes a resolver once per bucket and records pick changes.
type Service[R any] struct {
	resolver  *resolver.Resolver[R]
	store     *state.Store
	clock     clock.Clock
	logger    zerolog.Logger
	settle    time.Duration
	retention time.Duration
	after     func(time.Duration) <-chan time.Time

	picks      map[string]string
	validAfter time.Time
}

// New constructs the scheduler service. c must be the clock the resolver
// was built with.
func New[R any](r *resolver.Resolver[R], store *state.Store, c clock.Clock, logger zerolog.Logger) *Service[R] {
	if store == nil {
		store = state.NewStore()
	}
	if c == nil {
		c = clock.System
	}
	return &Service[R]{
		resolver:  r,
		store:     store,
		clock:     c,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		settle:    DefaultSettle,
		retention: DefaultRetention,
		after:     time.After,
	}
}

// Store returns the transition store.
func (s *Service[R]) Store() *state.Store { return s.store }

// Run refreshes immediately, then at every bucket boundary until ctx is
// cancelled.
func (s *Service[R]) Run(ctx context.Context) error {
	s.logger.Info().Msg("scheduler loop started")
	for {
		s.tick()

		wait := s.resolver.NextUpdate().Sub(s.clock.Now()) + s.settle
		if wait < minWait {
			wait = minWait
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-s.after(wait):
		}
	}
}

func (s *Service[R]) tick() {
	telemetry.SchedulerRefreshesTotal.Inc()

	// A lookup may have rebuilt the bucket before this tick, so compare
	// against the bucket last recorded rather than trusting rebuilt.
	bucket, rebuilt := s.resolver.Refresh()
	if !rebuilt && s.picks != nil && bucket.ValidAfter.Equal(s.validAfter) {
		return
	}

	now := s.clock.Now()
	current := make(map[string]string, len(bucket.Slots))
	for _, p := range bucket.Picks() {
		current[p.Slot] = p.ResourceID
	}

	// The first refresh only establishes the baseline.
	if s.picks != nil {
		var changes []state.Transition
		for _, slot := range bucket.Slots {
			from, to := s.picks[slot.Slot], current[slot.Slot]
			if from == to {
				continue
			}
			changes = append(changes, state.Transition{
				Slot:       slot.Slot,
				From:       from,
				To:         to,
				At:         now,
				ValidAfter: bucket.ValidAfter,
			})
		}
		if len(changes) > 0 {
			s.store.Add(changes...)
			s.logger.Info().
				Int("changed", len(changes)).
				Time("valid_after", bucket.ValidAfter).
				Msg("slot picks changed")
		}
	}
	s.picks = current
	s.validAfter = bucket.ValidAfter
	s.store.Prune(now.Add(-s.retention))
}
