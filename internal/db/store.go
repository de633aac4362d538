/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/schedule"
)

// ErrScheduleNotFound is returned when no rows exist for a schedule name.
var ErrScheduleNotFound = errors.New("schedule not found")

// LoadDefinition rebuilds the named schedule from its rows in position order.
func LoadDefinition(ctx context.Context, database *gorm.DB, name string) (*schedule.Definition, error) {
	var rows []models.ScheduleEntry
	if err := database.WithContext(ctx).
		Where("schedule = ?", name).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load schedule %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrScheduleNotFound, name)
	}
	return rowsToDefinition(rows)
}

// SaveDefinition replaces every row of the named schedule.
func SaveDefinition(ctx context.Context, database *gorm.DB, name string, def *schedule.Definition) error {
	rows := definitionToRows(name, def)

	return database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule = ?", name).Delete(&models.ScheduleEntry{}).Error; err != nil {
			return fmt.Errorf("clear schedule %q: %w", name, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("insert schedule %q: %w", name, err)
		}
		return nil
	})
}

// ListSchedules returns the stored schedule names.
func ListSchedules(ctx context.Context, database *gorm.DB) ([]string, error) {
	var names []string
	if err := database.WithContext(ctx).
		Model(&models.ScheduleEntry{}).
		Distinct("schedule").
		Order("schedule ASC").
		Pluck("schedule", &names).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return names, nil
}

// LoadResources returns every stored resource keyed by id.
func LoadResources(ctx context.Context, database *gorm.DB) (map[string]models.Resource, error) {
	var rows []models.Resource
	if err := database.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	out := make(map[string]models.Resource, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// SaveResources upserts resources by id.
func SaveResources(ctx context.Context, database *gorm.DB, resources []models.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	for _, r := range resources {
		if r.ID == "" {
			return errors.New("resource id is required")
		}
	}
	if err := database.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&resources).Error; err != nil {
		return fmt.Errorf("save resources: %w", err)
	}
	return nil
}

func definitionToRows(name string, def *schedule.Definition) []models.ScheduleEntry {
	var rows []models.ScheduleEntry
	if def == nil {
		return rows
	}

	for _, day := range def.Days {
		for _, hour := range day.Hours {
			for _, slot := range hour.Slots {
				base := models.ScheduleEntry{
					Schedule: name,
					Day:      day.Key.String(),
					Hour:     hour.Key.String(),
					Slot:     slot.ID,
				}
				if len(slot.Entries) == 0 {
					row := base
					row.ID = uuid.NewString()
					row.Position = len(rows)
					row.Placeholder = true
					rows = append(rows, row)
					continue
				}
				for _, e := range slot.Entries {
					row := base
					row.ID = uuid.NewString()
					row.Position = len(rows)
					row.ResourceID = e.ResourceID
					if v, ok := e.Priority.Value(); ok {
						row.Priority = &v
					}
					row.StartUnix = e.Start
					row.EndUnix = e.End
					row.Duration = e.Duration
					rows = append(rows, row)
				}
			}
		}
	}
	return rows
}

func rowsToDefinition(rows []models.ScheduleEntry) (*schedule.Definition, error) {
	def := &schedule.Definition{}
	for _, row := range rows {
		day, err := schedule.ParseKey(row.Day)
		if err != nil {
			return nil, fmt.Errorf("row %s day: %w", row.ID, err)
		}
		hour, err := schedule.ParseKey(row.Hour)
		if err != nil {
			return nil, fmt.Errorf("row %s hour: %w", row.ID, err)
		}
		if row.Placeholder {
			def.Add(day, hour, row.Slot)
			continue
		}

		entry := schedule.Entry{
			ResourceID: row.ResourceID,
			Start:      row.StartUnix,
			End:        row.EndUnix,
			Duration:   row.Duration,
		}
		if row.Priority != nil {
			entry.Priority = priority.Of(*row.Priority)
		}
		def.Add(day, hour, row.Slot, entry)
	}
	def.Sort()
	return def, nil
}
