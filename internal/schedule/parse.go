/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/slotcast/internal/priority"
)

// rawEntry mirrors the authoring format of a single entry.
type rawEntry struct {
	ResourceID string   `yaml:"resourceId"`
	Priority   *float64 `yaml:"priority"`
	Start      *int64   `yaml:"start"`
	End        *int64   `yaml:"end"`
	Duration   *float64 `yaml:"duration"`
}

func (r rawEntry) entry() Entry {
	e := Entry{
		ResourceID: r.ResourceID,
		Start:      r.Start,
		End:        r.End,
		Duration:   r.Duration,
	}
	if r.Priority != nil {
		e.Priority = priority.Of(*r.Priority)
	}
	return e
}

// Read decodes a definition from YAML or JSON.
func Read(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	return Parse(data)
}

// Parse decodes the nested authoring format
//
//	day -> hour -> slot -> [entries]
//
// where day and hour keys are integers or "*". JSON input is accepted as
// YAML. Document order of slots is preserved; day and hour keys are
// sorted canonically.
func Parse(data []byte) (*Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}

	def := &Definition{}
	if len(doc.Content) == 0 {
		return def, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse schedule: line %d: expected mapping of days", root.Line)
	}

	seenDays := make(map[Key]struct{})
	for i := 0; i+1 < len(root.Content); i += 2 {
		dayKey, err := ParseKey(root.Content[i].Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: day: %w", root.Content[i].Line, err)
		}
		if _, dup := seenDays[dayKey]; dup {
			return nil, fmt.Errorf("line %d: %w: day %s", root.Content[i].Line, ErrDuplicateKey, dayKey)
		}
		seenDays[dayKey] = struct{}{}

		day, err := parseDay(dayKey, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		def.Days = append(def.Days, day)
	}

	def.Sort()
	return def, nil
}

func parseDay(key Key, node *yaml.Node) (Day, error) {
	day := Day{Key: key}
	if node.Kind != yaml.MappingNode {
		return day, fmt.Errorf("line %d: day %s: expected mapping of hours", node.Line, key)
	}

	seen := make(map[Key]struct{})
	for i := 0; i+1 < len(node.Content); i += 2 {
		hourKey, err := ParseKey(node.Content[i].Value)
		if err != nil {
			return day, fmt.Errorf("line %d: hour: %w", node.Content[i].Line, err)
		}
		if _, dup := seen[hourKey]; dup {
			return day, fmt.Errorf("line %d: %w: day %s hour %s", node.Content[i].Line, ErrDuplicateKey, key, hourKey)
		}
		seen[hourKey] = struct{}{}

		hour, err := parseHour(hourKey, node.Content[i+1])
		if err != nil {
			return day, fmt.Errorf("day %s: %w", key, err)
		}
		day.Hours = append(day.Hours, hour)
	}
	return day, nil
}

func parseHour(key Key, node *yaml.Node) (Hour, error) {
	hour := Hour{Key: key}
	if node.Kind != yaml.MappingNode {
		return hour, fmt.Errorf("line %d: hour %s: expected mapping of slots", node.Line, key)
	}

	seen := make(map[string]struct{})
	for i := 0; i+1 < len(node.Content); i += 2 {
		slotID := node.Content[i].Value
		if _, dup := seen[slotID]; dup {
			return hour, fmt.Errorf("line %d: %w: slot %q", node.Content[i].Line, ErrDuplicateKey, slotID)
		}
		seen[slotID] = struct{}{}

		var raw []rawEntry
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return hour, fmt.Errorf("hour %s slot %q: %w: %v", key, slotID, ErrInvalidEntry, err)
		}

		slot := Slot{ID: slotID, Entries: make([]Entry, 0, len(raw))}
		for _, r := range raw {
			slot.Entries = append(slot.Entries, r.entry())
		}
		hour.Slots = append(hour.Slots, slot)
	}
	return hour, nil
}
