/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotcast/internal/db"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/source"
	"github.com/friendsincode/slotcast/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import schedule files into a database or bucket",
	Long:  "Store a schedule document, and optionally its resource catalogue, in the configured database or S3 bucket",
}

var importDBCmd = &cobra.Command{
	Use:   "db",
	Short: "Import into the configured database",
	RunE:  runImportDB,
}

var importS3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Upload to the configured S3 bucket",
	RunE:  runImportS3,
}

var (
	importSchedulePath  string
	importResourcesPath string
	importName          string
	importDryRun        bool
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importDBCmd)
	importCmd.AddCommand(importS3Cmd)

	for _, c := range []*cobra.Command{importDBCmd, importS3Cmd} {
		c.Flags().StringVar(&importSchedulePath, "schedule", "", "Path to schedule document (required)")
		c.Flags().StringVar(&importResourcesPath, "resources", "", "Path to resource catalogue")
		c.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate files without writing")
		_ = c.MarkFlagRequired("schedule")
	}
	importDBCmd.Flags().StringVar(&importName, "name", "", "Stored schedule name (default SLOTCAST_SCHEDULE_NAME)")
}

// readImport parses both files so nothing invalid is stored.
func readImport() ([]byte, *schedule.Definition, []byte, map[string]models.Resource, error) {
	scheduleData, err := os.ReadFile(importSchedulePath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read schedule: %w", err)
	}
	def, err := schedule.Parse(scheduleData)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if importResourcesPath == "" {
		return scheduleData, def, nil, nil, nil
	}
	resourceData, err := os.ReadFile(importResourcesPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read resources: %w", err)
	}
	resources, err := source.ParseResources(resourceData)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return scheduleData, def, resourceData, resources, nil
}

func runImportDB(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	_, def, _, resources, err := readImport()
	if err != nil {
		return err
	}

	name := importName
	if name == "" {
		name = cfg.ScheduleName
	}
	if importDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "would import schedule %q (%d entries, %d resources)\n", name, def.EntryCount(), len(resources))
		return nil
	}

	database, err := db.Connect(cfg.DBBackend, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	ctx := context.Background()
	if err := db.SaveDefinition(ctx, database, name, def); err != nil {
		return err
	}
	if len(resources) > 0 {
		ids := make([]string, 0, len(resources))
		for id := range resources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rows := make([]models.Resource, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, resources[id])
		}
		if err := db.SaveResources(ctx, database, rows); err != nil {
			return err
		}
	}

	logger.Info().
		Str("schedule", name).
		Str("digest", def.Digest()).
		Int("entries", def.EntryCount()).
		Int("resources", len(resources)).
		Msg("schedule imported")
	return nil
}

func runImportS3(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	scheduleData, def, resourceData, _, err := readImport()
	if err != nil {
		return err
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("SLOTCAST_S3_BUCKET must be set")
	}
	if resourceData != nil && cfg.S3ResourcesKey == "" {
		return fmt.Errorf("SLOTCAST_S3_RESOURCES_KEY must be set to upload resources")
	}
	if importDryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "would upload s3://%s/%s (%d entries)\n", cfg.S3Bucket, cfg.S3ScheduleKey, def.EntryCount())
		return nil
	}

	ctx := context.Background()
	store, err := storage.NewS3(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	}, logger)
	if err != nil {
		return err
	}

	if err := store.Put(ctx, cfg.S3ScheduleKey, scheduleData); err != nil {
		return err
	}
	if resourceData != nil {
		if err := store.Put(ctx, cfg.S3ResourcesKey, resourceData); err != nil {
			return err
		}
	}

	logger.Info().
		Str("bucket", cfg.S3Bucket).
		Str("key", cfg.S3ScheduleKey).
		Str("digest", def.Digest()).
		Msg("schedule uploaded")
	return nil
}
