/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package state

import (
	"sync"
	"time"
)

// Transition records a slot whose pick changed at a bucket boundary.
// From or To is empty when the slot had nothing active on that side.
type Transition struct {
	Slot       string    `json:"slot"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	At         time.Time `json:"at"`
	ValidAfter time.Time `json:"valid_after"`
}

// Store keeps recent transitions in memory, oldest first.
type Store struct {
	mu     sync.RWMutex
	recent []Transition
}

// NewStore creates a transition store.
func NewStore() *Store {
	return &Store{recent: make([]Transition, 0, 128)}
}

// Add registers transitions.
func (s *Store) Add(ts ...Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, ts...)
}

// Recent returns a snapshot of tracked transitions.
func (s *Store) Recent() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transition, len(s.recent))
	copy(out, s.recent)
	return out
}

// Latest returns the most recent transition of slot.
func (s *Store) Latest(slot string) (Transition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].Slot == slot {
			return s.recent[i], true
		}
	}
	return Transition{}, false
}

// Prune removes entries at or before cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.recent[:0]
	for _, t := range s.recent {
		if t.At.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	s.recent = filtered
}
