/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package priority selects one entry among several simultaneously active
// entries of a slot.
package priority

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Priority is an optional numeric rank. Higher values win; an unset
// priority loses to any set one, including zero.
type Priority struct {
	value float64
	set   bool
}

// None is the unset priority.
var None = Priority{}

// Of returns a set priority with value v.
func Of(v float64) Priority {
	return Priority{value: v, set: true}
}

// Value returns the numeric value and whether it is set.
func (p Priority) Value() (float64, bool) {
	return p.value, p.set
}

// IsSet reports whether the priority carries a value.
func (p Priority) IsSet() bool { return p.set }

// String renders the value, or "none".
func (p Priority) String() string {
	if !p.set {
		return "none"
	}
	return strconv.FormatFloat(p.value, 'g', -1, 64)
}

// MarshalJSON encodes an unset priority as null.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.set {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON accepts a number or null.
func (p *Priority) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = None
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	*p = Of(v)
	return nil
}

// Supersedes reports whether candidate replaces the current best.
// Ties keep best, so earlier entries win among equals.
func Supersedes(best, candidate Priority) bool {
	if !best.set {
		return true
	}
	return candidate.set && best.value < candidate.value
}

// Pick reduces entries to the single winner, scanning in order. It returns
// false only when entries is empty.
func Pick[T any](entries []T, priorityOf func(T) Priority) (T, bool) {
	var best T
	if len(entries) == 0 {
		return best, false
	}

	best = entries[0]
	bestPriority := priorityOf(best)
	for _, candidate := range entries[1:] {
		p := priorityOf(candidate)
		if Supersedes(bestPriority, p) {
			best = candidate
			bestPriority = p
		}
	}
	return best, true
}
