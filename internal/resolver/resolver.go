/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package resolver answers which resource occupies each slot of a weekly
// schedule, memoizing the evaluation per hour bucket.
//
// Activity is frozen at the first lookup of a bucket: a later lookup in the
// same hour is served the earlier result even when an entry boundary falls
// between the two instants.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/telemetry"
)

// SnapshotStore shares evaluated activity between resolver instances. key
// identifies both the definition and the schedule zone.
type SnapshotStore interface {
	GetActivity(ctx context.Context, key string, validAfter time.Time) (*schedule.Activity, bool)
	SetActivity(ctx context.Context, key string, validAfter, validUntil time.Time, act *schedule.Activity) error
}

type options struct {
	clock        clock.Clock
	normalizer   clock.Normalizer
	logger       zerolog.Logger
	store        SnapshotStore
	storeTimeout time.Duration
	bus          *events.Bus
}

// Option configures a Resolver.
type Option func(*options)

// WithClock sets the source of "now". Defaults to the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNormalizer sets the schedule zone. Defaults to UTC+9.
func WithNormalizer(n clock.Normalizer) Option {
	return func(o *options) { o.normalizer = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSnapshotStore consults store before evaluating a bucket and writes
// fresh evaluations back to it.
func WithSnapshotStore(store SnapshotStore, timeout time.Duration) Option {
	return func(o *options) {
		o.store = store
		o.storeTimeout = timeout
	}
}

// WithBus publishes rebuild and slot change events to bus.
func WithBus(bus *events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// Resolver resolves slots against one schedule and resource table, both
// treated as read-only. It is safe for concurrent use.
type Resolver[R any] struct {
	resources map[string]R
	def       *schedule.Definition
	digest    string
	snapshot  string
	opts      options
	logger    zerolog.Logger

	mu     sync.Mutex
	bucket Bucket[R]
}

// New creates a resolver. The initial bucket is empty so the first lookup
// always evaluates.
func New[R any](resources map[string]R, def *schedule.Definition, opts ...Option) *Resolver[R] {
	o := options{
		clock:        clock.System,
		normalizer:   clock.DefaultNormalizer(),
		logger:       zerolog.Nop(),
		storeTimeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if def == nil {
		def = &schedule.Definition{}
	}

	digest := def.Digest()
	return &Resolver[R]{
		resources: resources,
		def:       def,
		digest:    digest,
		snapshot:  SnapshotKey(digest, o.normalizer),
		opts:      o,
		logger:    o.logger.With().Str("component", "resolver").Logger(),
	}
}

// SnapshotKey scopes shared activity to a definition evaluated in n's zone.
func SnapshotKey(digest string, n clock.Normalizer) string {
	return digest + "@" + n.Zone().String()
}

// Definition returns the schedule being resolved.
func (r *Resolver[R]) Definition() *schedule.Definition { return r.def }

// Digest identifies the schedule content.
func (r *Resolver[R]) Digest() string { return r.digest }

// Get returns the resource picked for slot now.
func (r *Resolver[R]) Get(slot string) (R, bool) {
	return r.GetAt(slot, time.Time{})
}

// GetAt returns the resource picked for slot at t. It reports false when
// the slot is unknown, has nothing active, or its pick names a missing
// resource.
func (r *Resolver[R]) GetAt(slot string, t time.Time) (R, bool) {
	best, ok := r.PickAt(slot, t)
	if !ok || !best.Found {
		var zero R
		return zero, false
	}
	return best.Resource, true
}

// PickAt returns the winning entry of slot at t, including entries whose
// resource is missing.
func (r *Resolver[R]) PickAt(slot string, t time.Time) (ActiveEntry[R], bool) {
	return r.bucketAt(t).Pick(slot)
}

// Slots returns the full activity mapping now.
func (r *Resolver[R]) Slots() Bucket[R] {
	return r.SlotsAt(time.Time{})
}

// SlotsAt returns the full activity mapping of the bucket containing t.
func (r *Resolver[R]) SlotsAt(t time.Time) Bucket[R] {
	return r.bucketAt(t)
}

// List returns one resource per non-empty slot now.
func (r *Resolver[R]) List() []R {
	return r.ListAt(time.Time{})
}

// ListAt returns one resource per non-empty slot at t, in slot order. A
// pick naming a missing resource contributes the zero value.
func (r *Resolver[R]) ListAt(t time.Time) []R {
	picks := r.PicksAt(t)
	out := make([]R, 0, len(picks))
	for _, p := range picks {
		out = append(out, p.Resource)
	}
	return out
}

// PicksAt resolves every non-empty slot at t.
func (r *Resolver[R]) PicksAt(t time.Time) []SlotPick[R] {
	return r.bucketAt(t).Picks()
}

// NextUpdate returns the start of the next hour bucket.
func (r *Resolver[R]) NextUpdate() time.Time {
	return r.NextUpdateAt(time.Time{})
}

// NextUpdateAt returns the start of the bucket after the one containing t.
// It does not touch the cache.
func (r *Resolver[R]) NextUpdateAt(t time.Time) time.Time {
	return clock.NextBucket(r.instant(t))
}

// Cache returns the bucket currently held, possibly the empty initial one.
func (r *Resolver[R]) Cache() Bucket[R] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bucket
}

// Refresh makes sure the bucket covers now and reports whether that took
// a rebuild.
func (r *Resolver[R]) Refresh() (Bucket[R], bool) {
	t := r.opts.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bucket.Contains(t) {
		return r.bucket, false
	}
	r.rebuild(t)
	return r.bucket, true
}

func (r *Resolver[R]) instant(t time.Time) time.Time {
	if t.IsZero() {
		return r.opts.clock.Now()
	}
	return t
}

func (r *Resolver[R]) bucketAt(t time.Time) Bucket[R] {
	t = r.instant(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bucket.Contains(t) {
		telemetry.ResolverLookupsTotal.WithLabelValues("hit").Inc()
		return r.bucket
	}
	telemetry.ResolverLookupsTotal.WithLabelValues("miss").Inc()
	r.rebuild(t)
	return r.bucket
}

// rebuild replaces the bucket with one evaluated at t. Callers hold mu.
func (r *Resolver[R]) rebuild(t time.Time) {
	started := time.Now()
	validAfter := clock.BucketStart(t)
	validUntil := validAfter.Add(clock.Bucket)

	ctx, span := telemetry.StartSpan(context.Background(), "resolver.rebuild",
		attribute.String("schedule.digest", r.digest),
		attribute.Int64("bucket.valid_after_ms", validAfter.UnixMilli()),
	)
	defer span.End()

	act, source := r.activity(ctx, t, validAfter, validUntil)
	next := bind(act, r.resources, validAfter)

	previous := r.bucket
	r.bucket = next

	duration := time.Since(started)
	telemetry.ResolverRebuildDuration.Observe(duration.Seconds())
	for _, s := range next.Slots {
		telemetry.ResolverActiveEntries.WithLabelValues(s.Slot).Set(float64(len(s.Entries)))
	}
	span.SetAttributes(
		attribute.String("activity.source", source),
		attribute.Int("activity.entries", next.ActiveCount()),
	)

	r.logger.Debug().
		Time("valid_after", validAfter).
		Time("evaluated_at", next.EvaluatedAt).
		Str("source", source).
		Int("slots", len(next.Slots)).
		Int("active", next.ActiveCount()).
		Dur("took", duration).
		Msg("bucket rebuilt")

	r.announce(previous, next, source)
}

// activity evaluates t, or reuses another instance's evaluation of the
// same bucket when a snapshot store is configured.
func (r *Resolver[R]) activity(ctx context.Context, t, validAfter, validUntil time.Time) (*schedule.Activity, string) {
	if r.opts.store == nil {
		return schedule.Evaluate(r.def, t, r.opts.normalizer), "evaluated"
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.storeTimeout)
	defer cancel()

	if act, ok := r.opts.store.GetActivity(ctx, r.snapshot, validAfter); ok {
		return act, "shared"
	}

	act := schedule.Evaluate(r.def, t, r.opts.normalizer)
	if err := r.opts.store.SetActivity(ctx, r.snapshot, validAfter, validUntil, act); err != nil {
		r.logger.Debug().Err(err).Msg("snapshot store write failed")
	}
	return act, "evaluated"
}

// announce publishes the rebuild and every slot whose pick changed. The
// slot set is fixed by the definition, so only picks can differ.
func (r *Resolver[R]) announce(previous, next Bucket[R], source string) {
	before := make(map[string]string)
	for _, p := range previous.Picks() {
		before[p.Slot] = p.ResourceID
	}
	after := make(map[string]string)
	for _, p := range next.Picks() {
		after[p.Slot] = p.ResourceID
	}

	changed := 0
	for _, s := range next.Slots {
		was, had := before[s.Slot]
		now, has := after[s.Slot]
		if had == has && was == now {
			continue
		}
		changed++
		telemetry.ResolverSlotChangesTotal.WithLabelValues(s.Slot).Inc()
		r.publish(events.EventSlotChanged, events.Payload{
			"slot":            s.Slot,
			"previous":        was,
			"resource_id":     now,
			"active":          has,
			"valid_after_ms":  next.ValidAfter.UnixMilli(),
			"evaluated_at_ms": next.EvaluatedAt.UnixMilli(),
		})
	}
	r.publish(events.EventBucketRebuilt, events.Payload{
		"digest":          r.digest,
		"source":          source,
		"valid_after_ms":  next.ValidAfter.UnixMilli(),
		"valid_until_ms":  next.ValidUntil.UnixMilli(),
		"evaluated_at_ms": next.EvaluatedAt.UnixMilli(),
		"active":          next.ActiveCount(),
		"changed":         changed,
	})
}

func (r *Resolver[R]) publish(eventType events.EventType, payload events.Payload) {
	if r.opts.bus == nil {
		return
	}
	r.opts.bus.Publish(eventType, payload)
}
