/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock converts instants into the weekly calendar coordinates
// schedules are written in, and provides the injectable time source used
// by the resolver.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidInstant is returned by ParseInstant for unrecognised input.
var ErrInvalidInstant = errors.New("invalid instant")

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
var System Clock = systemClock{}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// ParseInstant accepts unix milliseconds or RFC3339. An empty value or 0 ms
// yields the zero time, which resolvers read as now.
func ParseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms == 0 {
			return time.Time{}, nil
		}
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, raw)
	}
	return t, nil
}
