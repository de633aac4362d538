/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolver

import (
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/schedule"
)

// ActiveEntry is an active schedule entry bound to its resource. Found is
// false when the resource table has no value for ResourceID; such entries
// still compete in priority selection.
type ActiveEntry[R any] struct {
	ResourceID string            `json:"resource_id"`
	Resource   R                 `json:"resource"`
	Found      bool              `json:"found"`
	Priority   priority.Priority `json:"priority"`
}

// SlotEntries lists the active entries of one slot in definition order.
type SlotEntries[R any] struct {
	Slot    string           `json:"slot"`
	Entries []ActiveEntry[R] `json:"entries"`
}

// SlotPick is the resolved entry of a non-empty slot.
type SlotPick[R any] struct {
	Slot string `json:"slot"`
	ActiveEntry[R]
}

// Bucket is the activity snapshot served for one hour.
// ValidUntil is always ValidAfter plus one hour; EvaluatedAt is the instant
// activity was computed at, which may lie anywhere inside the bucket.
type Bucket[R any] struct {
	Slots       []SlotEntries[R] `json:"slots"`
	ValidAfter  time.Time        `json:"valid_after"`
	ValidUntil  time.Time        `json:"valid_until"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

// Contains reports whether t falls inside [ValidAfter, ValidUntil). The
// zero bucket contains nothing.
func (b Bucket[R]) Contains(t time.Time) bool {
	if b.ValidUntil.IsZero() {
		return false
	}
	return !t.Before(b.ValidAfter) && t.Before(b.ValidUntil)
}

// Lookup returns the active entries of slot and whether the slot exists.
func (b Bucket[R]) Lookup(slot string) ([]ActiveEntry[R], bool) {
	for i := range b.Slots {
		if b.Slots[i].Slot == slot {
			return b.Slots[i].Entries, true
		}
	}
	return nil, false
}

// Pick resolves one slot. It returns false when the slot is absent or
// has no active entries.
func (b Bucket[R]) Pick(slot string) (ActiveEntry[R], bool) {
	entries, ok := b.Lookup(slot)
	if !ok {
		return ActiveEntry[R]{}, false
	}
	return pickEntry(entries)
}

// Picks resolves every non-empty slot, in slot order.
func (b Bucket[R]) Picks() []SlotPick[R] {
	picks := make([]SlotPick[R], 0, len(b.Slots))
	for _, s := range b.Slots {
		if best, ok := pickEntry(s.Entries); ok {
			picks = append(picks, SlotPick[R]{Slot: s.Slot, ActiveEntry: best})
		}
	}
	return picks
}

// ActiveCount returns the number of active entries across slots.
func (b Bucket[R]) ActiveCount() int {
	n := 0
	for _, s := range b.Slots {
		n += len(s.Entries)
	}
	return n
}

func pickEntry[R any](entries []ActiveEntry[R]) (ActiveEntry[R], bool) {
	return priority.Pick(entries, func(e ActiveEntry[R]) priority.Priority { return e.Priority })
}

// Build evaluates def at t and binds the result to resources. It is the
// pure rebuild step of the hourly cache.
func Build[R any](def *schedule.Definition, resources map[string]R, t time.Time, n clock.Normalizer) Bucket[R] {
	return bind(schedule.Evaluate(def, t, n), resources, clock.BucketStart(t))
}

func bind[R any](act *schedule.Activity, resources map[string]R, validAfter time.Time) Bucket[R] {
	b := Bucket[R]{
		Slots:       make([]SlotEntries[R], 0, len(act.Slots)),
		ValidAfter:  validAfter,
		ValidUntil:  validAfter.Add(clock.Bucket),
		EvaluatedAt: act.At,
	}
	for _, s := range act.Slots {
		entries := make([]ActiveEntry[R], 0, len(s.Entries))
		for _, a := range s.Entries {
			res, found := resources[a.ResourceID]
			entries = append(entries, ActiveEntry[R]{
				ResourceID: a.ResourceID,
				Resource:   res,
				Found:      found,
				Priority:   a.Priority,
			})
		}
		b.Slots = append(b.Slots, SlotEntries[R]{Slot: s.Slot, Entries: entries})
	}
	return b
}
