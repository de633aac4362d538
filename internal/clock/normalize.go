/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"fmt"
	"time"
)

// DefaultOffset is the UTC offset schedules are authored in (UTC+9).
const DefaultOffset = 9 * time.Hour

// Bucket is the width of one cache window.
const Bucket = time.Hour

// Coordinates locate an instant on the weekly schedule grid.
type Coordinates struct {
	ISOYear    int
	ISOWeek    int
	ISOWeekday int // 1=Monday .. 7=Sunday
	Hour       int
}

// Normalizer maps instants onto a fixed-offset ISO week calendar.
type Normalizer struct {
	zone *time.Location
}

// NewNormalizer returns a normalizer for the given fixed UTC offset.
func NewNormalizer(offset time.Duration) Normalizer {
	return Normalizer{zone: ZoneFor(offset)}
}

// DefaultNormalizer uses DefaultOffset.
func DefaultNormalizer() Normalizer {
	return NewNormalizer(DefaultOffset)
}

// ZoneFor builds a fixed zone named after its offset, e.g. "UTC+09:00".
func ZoneFor(offset time.Duration) *time.Location {
	secs := int(offset / time.Second)
	sign := '+'
	abs := secs
	if secs < 0 {
		sign = '-'
		abs = -secs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, (abs%3600)/60)
	return time.FixedZone(name, secs)
}

// Zone returns the normalizer's location.
func (n Normalizer) Zone() *time.Location {
	if n.zone == nil {
		return ZoneFor(DefaultOffset)
	}
	return n.zone
}

// Normalize returns the ISO week, ISO weekday and hour of t in the zone.
func (n Normalizer) Normalize(t time.Time) Coordinates {
	local := t.In(n.Zone())
	year, week := local.ISOWeek()
	return Coordinates{
		ISOYear:    year,
		ISOWeek:    week,
		ISOWeekday: ISOWeekday(local),
		Hour:       local.Hour(),
	}
}

// HourStart returns the start of hour on ISO weekday of the given ISO week.
// The week anchor is Monday of that week at hour; weekday-1 days are then
// added. Out of range weekdays or hours are not rejected and simply roll
// over into neighbouring days.
func (n Normalizer) HourStart(isoYear, isoWeek, weekday, hour int) time.Time {
	zone := n.Zone()
	// January 4th always falls in ISO week 1.
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, zone)
	monday := jan4.AddDate(0, 0, 1-ISOWeekday(jan4))
	anchor := time.Date(monday.Year(), monday.Month(), monday.Day()+(isoWeek-1)*7, hour, 0, 0, 0, zone)
	return anchor.AddDate(0, 0, weekday-1)
}

// ISOWeekday is like (time.Time).Weekday, but sunday is 7 instead of 0.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// BucketStart returns the hour-aligned start of the bucket containing t,
// measured in absolute time.
func BucketStart(t time.Time) time.Time {
	ms := t.UnixMilli()
	width := Bucket.Milliseconds()
	rem := ms % width
	if rem < 0 {
		rem += width
	}
	return time.UnixMilli(ms - rem)
}

// NextBucket returns the start of the bucket after the one containing t.
func NextBucket(t time.Time) time.Time {
	return BucketStart(t).Add(Bucket)
}
