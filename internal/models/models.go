/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// ResourceKind enumerates what a resource points at.
type ResourceKind string

const (
	ResourceKindBanner   ResourceKind = "banner"
	ResourceKindMedia    ResourceKind = "media"
	ResourceKindLink     ResourceKind = "link"
	ResourceKindMarkdown ResourceKind = "markdown"
)

// Resource is the payload a slot resolves to.
type Resource struct {
	ID        string         `gorm:"type:varchar(128);primaryKey" json:"id" yaml:"id"`
	Kind      ResourceKind   `gorm:"type:varchar(32);index" json:"kind,omitempty" yaml:"kind"`
	Title     string         `json:"title,omitempty" yaml:"title"`
	URL       string         `json:"url,omitempty" yaml:"url"`
	Body      string         `gorm:"type:text" json:"body,omitempty" yaml:"body"`
	Metadata  map[string]any `gorm:"serializer:json" json:"metadata,omitempty" yaml:"metadata"`
	CreatedAt time.Time      `json:"-" yaml:"-"`
	UpdatedAt time.Time      `json:"-" yaml:"-"`
}

// ScheduleEntry is one row of a stored weekly schedule. Day and Hour hold
// a decimal key or "*". Position preserves authoring order within a
// schedule. A placeholder row records a slot declared with no entries.
type ScheduleEntry struct {
	ID          string   `gorm:"type:uuid;primaryKey"`
	Schedule    string   `gorm:"type:varchar(64);index:idx_schedule_position"`
	Position    int      `gorm:"index:idx_schedule_position"`
	Day         string   `gorm:"type:varchar(4)"`
	Hour        string   `gorm:"type:varchar(4)"`
	Slot        string   `gorm:"type:varchar(128);index"`
	ResourceID  string   `gorm:"type:varchar(128)"`
	Priority    *float64 // NULL means no priority
	StartUnix   *int64
	EndUnix     *int64
	Duration    *float64 // hours
	Placeholder bool
	CreatedAt   time.Time
}
