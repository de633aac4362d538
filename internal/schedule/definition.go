/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule holds weekly schedule definitions and evaluates which of
// their entries are active at a given instant.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/friendsincode/slotcast/internal/priority"
)

var (
	// ErrInvalidKey indicates a day or hour key that is neither an integer nor the wildcard.
	ErrInvalidKey = errors.New("invalid schedule key")

	// ErrInvalidEntry indicates a schedule entry that could not be decoded.
	ErrInvalidEntry = errors.New("invalid schedule entry")

	// ErrDuplicateKey indicates the same day, hour or slot key appears twice at one level.
	ErrDuplicateKey = errors.New("duplicate schedule key")
)

// Wildcard is the authoring token for Any.
const Wildcard = "*"

// Key is a day or hour key: either a literal number or the wildcard that
// stands for the value of the instant being evaluated.
type Key struct {
	value int
	any   bool
}

// Any matches the current weekday or hour.
var Any = Key{any: true}

// Literal returns a key for a fixed weekday (1-7) or hour (0-23).
func Literal(n int) Key {
	return Key{value: n}
}

// ParseKey parses "*" or a decimal integer.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == Wildcard {
		return Any, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Literal(n), nil
}

// IsAny reports whether k is the wildcard.
func (k Key) IsAny() bool { return k.any }

// Resolve returns the literal value, or current for the wildcard.
func (k Key) Resolve(current int) int {
	if k.any {
		return current
	}
	return k.value
}

func (k Key) String() string {
	if k.any {
		return Wildcard
	}
	return strconv.Itoa(k.value)
}

// less orders literal keys ascending with the wildcard last.
func (k Key) less(other Key) bool {
	if k.any != other.any {
		return other.any
	}
	return k.value < other.value
}

// MarshalJSON encodes the wildcard as "*" and literals as numbers.
func (k Key) MarshalJSON() ([]byte, error) {
	if k.any {
		return []byte(`"*"`), nil
	}
	return []byte(strconv.Itoa(k.value)), nil
}

// UnmarshalJSON accepts "*", a number, or a numeric string.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Entry binds a resource to a slot for a window inside a scheduled hour.
// Start and End are unix seconds; Duration is in hours. Nil or zero End and
// Duration mean "unbounded" and "one hour".
type Entry struct {
	ResourceID string            `json:"resourceId"`
	Priority   priority.Priority `json:"priority"`
	Start      *int64            `json:"start,omitempty"`
	End        *int64            `json:"end,omitempty"`
	Duration   *float64          `json:"duration,omitempty"`
}

// DefaultDuration applies when an entry carries no duration.
const DefaultDuration = time.Hour

// maxWindowUnix caps window ends so huge or infinite durations stay in the
// range time.Time can represent.
const maxWindowUnix = int64(1) << 62

// Window returns the half-open active interval [after, until) of the entry
// for an hour starting at scheduleTime. An unset start counts as the epoch,
// so the window never opens before 1970.
func (e Entry) Window(scheduleTime time.Time) (after, until time.Time) {
	base := scheduleTime.Unix()

	var start int64
	if e.Start != nil {
		start = *e.Start
	}
	after = time.Unix(max(start, base), 0)

	hours := DefaultDuration.Hours()
	if e.Duration != nil && *e.Duration != 0 {
		hours = *e.Duration
	}
	// Float seconds keep very long durations from overflowing.
	end := float64(base) + hours*3600
	switch {
	case math.IsNaN(end) || end < -float64(maxWindowUnix):
		return after, after
	case end >= float64(maxWindowUnix):
		until = time.Unix(maxWindowUnix, 0)
	default:
		sec := math.Floor(end)
		until = time.Unix(int64(sec), int64((end-sec)*1e9))
	}

	if e.End != nil && *e.End != 0 && *e.End < until.Unix() {
		until = time.Unix(*e.End, 0)
	}
	return after, until
}

// ActiveAt reports whether now falls inside the entry's window for the
// hour starting at scheduleTime.
func (e Entry) ActiveAt(scheduleTime, now time.Time) bool {
	after, until := e.Window(scheduleTime)
	return !now.Before(after) && now.Before(until)
}

// Slot lists the entries of one placement within a scheduled hour.
type Slot struct {
	ID      string  `json:"slot"`
	Entries []Entry `json:"entries"`
}

// Hour groups the slots of one hour key.
type Hour struct {
	Key   Key    `json:"hour"`
	Slots []Slot `json:"slots"`
}

// Day groups the hours of one day key.
type Day struct {
	Key   Key    `json:"day"`
	Hours []Hour `json:"hours"`
}

// Definition is the full weekly schedule. Traversal order is significant:
// it decides slot order in evaluation results.
type Definition struct {
	Days []Day `json:"days"`
}

// Add appends entries under day/hour/slot, creating each level on first use.
func (d *Definition) Add(day, hour Key, slot string, entries ...Entry) {
	di := -1
	for i := range d.Days {
		if d.Days[i].Key == day {
			di = i
			break
		}
	}
	if di < 0 {
		d.Days = append(d.Days, Day{Key: day})
		di = len(d.Days) - 1
	}

	hours := &d.Days[di].Hours
	hi := -1
	for i := range *hours {
		if (*hours)[i].Key == hour {
			hi = i
			break
		}
	}
	if hi < 0 {
		*hours = append(*hours, Hour{Key: hour})
		hi = len(*hours) - 1
	}

	slots := &(*hours)[hi].Slots
	for i := range *slots {
		if (*slots)[i].ID == slot {
			(*slots)[i].Entries = append((*slots)[i].Entries, entries...)
			return
		}
	}
	*slots = append(*slots, Slot{ID: slot, Entries: entries})
}

// Sort puts day and hour keys in canonical order: literal keys ascending,
// then the wildcard. Slot order is left as authored.
func (d *Definition) Sort() {
	sort.SliceStable(d.Days, func(i, j int) bool { return d.Days[i].Key.less(d.Days[j].Key) })
	for i := range d.Days {
		hours := d.Days[i].Hours
		sort.SliceStable(hours, func(a, b int) bool { return hours[a].Key.less(hours[b].Key) })
	}
}

// SlotIDs returns every slot mentioned by the definition, in traversal order.
func (d *Definition) SlotIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, day := range d.Days {
		for _, hour := range day.Hours {
			for _, slot := range hour.Slots {
				if _, ok := seen[slot.ID]; ok {
					continue
				}
				seen[slot.ID] = struct{}{}
				ids = append(ids, slot.ID)
			}
		}
	}
	return ids
}

// ResourceIDs returns every resource referenced by an entry, in traversal
// order.
func (d *Definition) ResourceIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, day := range d.Days {
		for _, hour := range day.Hours {
			for _, slot := range hour.Slots {
				for _, e := range slot.Entries {
					if _, ok := seen[e.ResourceID]; ok {
						continue
					}
					seen[e.ResourceID] = struct{}{}
					ids = append(ids, e.ResourceID)
				}
			}
		}
	}
	return ids
}

// EntryCount returns the number of entries across the definition.
func (d *Definition) EntryCount() int {
	n := 0
	for _, day := range d.Days {
		for _, hour := range day.Hours {
			for _, slot := range hour.Slots {
				n += len(slot.Entries)
			}
		}
	}
	return n
}

// Digest identifies the definition's content. Equal definitions in equal
// order share a digest.
func (d *Definition) Digest() string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
