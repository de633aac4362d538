/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/config"
	"github.com/friendsincode/slotcast/internal/db"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/source"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve slots once and print the result",
	Long:  "Load the configured schedule, resolve every slot (or one with --slot) at an instant and print JSON",
	RunE:  runResolve,
}

var (
	resolveAt   string
	resolveSlot string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveAt, "at", "", "Instant as unix milliseconds or RFC3339 (default now)")
	resolveCmd.Flags().StringVar(&resolveSlot, "slot", "", "Resolve a single slot")
}

type resolution struct {
	At         time.Time                            `json:"at"`
	NextUpdate time.Time                            `json:"next_update"`
	Picks      []resolver.SlotPick[models.Resource] `json:"picks"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	at, err := clock.ParseInstant(resolveAt)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	ctx := context.Background()
	var loaded *source.Loaded
	if cfg.ScheduleSource == config.SourceDatabase {
		database, err := db.Connect(cfg.DBBackend, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer db.Close(database)
		loaded, err = source.Load(ctx, cfg, database, logger)
		if err != nil {
			return err
		}
	} else if loaded, err = source.Load(ctx, cfg, nil, logger); err != nil {
		return err
	}

	r := resolver.New(loaded.Resources, loaded.Definition,
		resolver.WithNormalizer(clock.NewNormalizer(cfg.UTCOffset())),
		resolver.WithLogger(logger),
	)
	return writeResolution(cmd.OutOrStdout(), r, at, resolveSlot)
}

func writeResolution(w io.Writer, r *resolver.Resolver[models.Resource], at time.Time, slot string) error {
	out := resolution{At: at, NextUpdate: r.NextUpdateAt(at)}
	if slot == "" {
		out.Picks = r.PicksAt(at)
	} else {
		best, ok := r.PickAt(slot, at)
		if !ok {
			return fmt.Errorf("slot %q has nothing active at %s", slot, at.Format(time.RFC3339))
		}
		out.Picks = []resolver.SlotPick[models.Resource]{{Slot: slot, ActiveEntry: best}}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
