/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/priority"
)

// Active is an entry found active during evaluation.
type Active struct {
	ResourceID string            `json:"resource_id"`
	Priority   priority.Priority `json:"priority"`
}

// SlotActivity lists the active entries of one slot in definition order.
// Entries may be empty when the slot is scheduled but nothing is live.
type SlotActivity struct {
	Slot    string   `json:"slot"`
	Entries []Active `json:"entries"`
}

// Activity is the result of evaluating a definition at one instant.
type Activity struct {
	At    time.Time      `json:"at"`
	Slots []SlotActivity `json:"slots"`
}

// Lookup returns the active entries of a slot and whether the slot exists.
func (a *Activity) Lookup(slot string) ([]Active, bool) {
	for i := range a.Slots {
		if a.Slots[i].Slot == slot {
			return a.Slots[i].Entries, true
		}
	}
	return nil, false
}

// ActiveCount returns the number of active entries over all slots.
func (a *Activity) ActiveCount() int {
	n := 0
	for _, s := range a.Slots {
		n += len(s.Entries)
	}
	return n
}

// Evaluate walks the whole definition once and collects the entries active
// at the instant at. Wildcard day and hour keys resolve to at's own
// weekday and hour; every hour is placed in at's ISO week. Activity is
// tested at whole-second resolution.
func Evaluate(def *Definition, at time.Time, n clock.Normalizer) *Activity {
	coords := n.Normalize(at)
	now := time.Unix(at.Unix(), 0)

	act := &Activity{At: at}
	if def == nil {
		return act
	}

	index := make(map[string]int)
	for _, day := range def.Days {
		weekday := day.Key.Resolve(coords.ISOWeekday)

		for _, hour := range day.Hours {
			h := hour.Key.Resolve(coords.Hour)
			scheduleTime := n.HourStart(coords.ISOYear, coords.ISOWeek, weekday, h)

			for _, slot := range hour.Slots {
				i, ok := index[slot.ID]
				if !ok {
					act.Slots = append(act.Slots, SlotActivity{Slot: slot.ID, Entries: []Active{}})
					i = len(act.Slots) - 1
					index[slot.ID] = i
				}

				for _, entry := range slot.Entries {
					if !entry.ActiveAt(scheduleTime, now) {
						continue
					}
					act.Slots[i].Entries = append(act.Slots[i].Entries, Active{
						ResourceID: entry.ResourceID,
						Priority:   entry.Priority,
					})
				}
			}
		}
	}
	return act
}
