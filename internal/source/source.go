/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package source loads the schedule definition and resource catalogue a
// resolver is built from.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotcast/internal/config"
	"github.com/friendsincode/slotcast/internal/db"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/storage"
)

// ErrUnknownSource is returned for an unsupported source kind.
var ErrUnknownSource = errors.New("unknown schedule source")

// Loaded is a definition with the resources it resolves to.
type Loaded struct {
	Definition *schedule.Definition
	Resources  map[string]models.Resource
	Origin     string
}

// FromStore reads the schedule document at scheduleKey and, when
// resourcesKey is set, the resource catalogue at resourcesKey. Without a
// catalogue every referenced id resolves to a bare resource.
func FromStore(ctx context.Context, store storage.ObjectStore, scheduleKey, resourcesKey string) (*Loaded, error) {
	data, err := store.Get(ctx, scheduleKey)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	def, err := schedule.Parse(data)
	if err != nil {
		return nil, err
	}

	var resources map[string]models.Resource
	if resourcesKey == "" {
		resources = bareResources(def)
	} else {
		raw, err := store.Get(ctx, resourcesKey)
		if err != nil {
			return nil, fmt.Errorf("fetch resources: %w", err)
		}
		if resources, err = ParseResources(raw); err != nil {
			return nil, err
		}
	}

	return &Loaded{Definition: def, Resources: resources, Origin: scheduleKey}, nil
}

// FromDatabase loads the named schedule and the stored resource table.
func FromDatabase(ctx context.Context, database *gorm.DB, name string) (*Loaded, error) {
	def, err := db.LoadDefinition(ctx, database, name)
	if err != nil {
		return nil, err
	}
	resources, err := db.LoadResources(ctx, database)
	if err != nil {
		return nil, err
	}
	return &Loaded{Definition: def, Resources: resources, Origin: "db:" + name}, nil
}

// Load resolves cfg.ScheduleSource to a loader. database is only used by
// the db source and may be nil otherwise.
func Load(ctx context.Context, cfg *config.Config, database *gorm.DB, logger zerolog.Logger) (*Loaded, error) {
	var (
		loaded *Loaded
		err    error
	)

	switch cfg.ScheduleSource {
	case config.SourceFile:
		store := storage.NewFilesystem("", logger)
		loaded, err = FromStore(ctx, store, cfg.SchedulePath, cfg.ResourcesPath)
	case config.SourceS3:
		store, serr := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if serr != nil {
			return nil, serr
		}
		loaded, err = FromStore(ctx, store, cfg.S3ScheduleKey, cfg.S3ResourcesKey)
		if loaded != nil {
			loaded.Origin = "s3://" + cfg.S3Bucket + "/" + cfg.S3ScheduleKey
		}
	case config.SourceDatabase:
		if database == nil {
			return nil, errors.New("db source requires a database connection")
		}
		loaded, err = FromDatabase(ctx, database, cfg.ScheduleName)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.ScheduleSource)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("source", string(cfg.ScheduleSource)).
		Str("origin", loaded.Origin).
		Str("digest", loaded.Definition.Digest()).
		Int("slots", len(loaded.Definition.SlotIDs())).
		Int("entries", loaded.Definition.EntryCount()).
		Int("resources", len(loaded.Resources)).
		Msg("schedule loaded")

	return loaded, nil
}

func bareResources(def *schedule.Definition) map[string]models.Resource {
	ids := def.ResourceIDs()
	out := make(map[string]models.Resource, len(ids))
	for _, id := range ids {
		out[id] = models.Resource{ID: id}
	}
	return out
}
