/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/source"
)

var checkCmd = &cobra.Command{
	Use:   "check <schedule-file>",
	Short: "Parse a schedule file and summarize it",
	Long:  "Parse a schedule document, print its slots and digest, and optionally render one week as iCalendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var (
	checkResources string
	checkICal      bool
	checkWeek      string
	checkOffset    float64
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkResources, "resources", "", "Resource catalogue to check references against")
	checkCmd.Flags().BoolVar(&checkICal, "ics", false, "Print the schedule week as iCalendar instead of a summary")
	checkCmd.Flags().StringVar(&checkWeek, "week", "", "Instant inside the week to export (default now)")
	checkCmd.Flags().Float64Var(&checkOffset, "utc-offset", 9, "Schedule UTC offset in hours")
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read schedule: %w", err)
	}
	def, err := schedule.Parse(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkICal {
		weekOf, err := clock.ParseInstant(checkWeek)
		if err != nil {
			return err
		}
		now := time.Now()
		if weekOf.IsZero() {
			weekOf = now
		}
		n := clock.NewNormalizer(time.Duration(checkOffset * float64(time.Hour)))
		_, err = out.Write(schedule.ExportICal(def, weekOf, n, now).Data)
		return err
	}

	var missing []string
	if checkResources != "" {
		raw, err := os.ReadFile(checkResources)
		if err != nil {
			return fmt.Errorf("read resources: %w", err)
		}
		resources, err := source.ParseResources(raw)
		if err != nil {
			return err
		}
		for _, id := range def.ResourceIDs() {
			if _, ok := resources[id]; !ok {
				missing = append(missing, id)
			}
		}
	}

	writeSummary(out, def, missing)
	return nil
}

func writeSummary(w io.Writer, def *schedule.Definition, missing []string) {
	fmt.Fprintf(w, "digest:    %s\n", def.Digest())
	fmt.Fprintf(w, "days:      %d\n", len(def.Days))
	fmt.Fprintf(w, "entries:   %d\n", def.EntryCount())
	fmt.Fprintf(w, "slots:     %s\n", strings.Join(def.SlotIDs(), ", "))
	fmt.Fprintf(w, "resources: %s\n", strings.Join(def.ResourceIDs(), ", "))
	if len(missing) > 0 {
		fmt.Fprintf(w, "missing:   %s\n", strings.Join(missing, ", "))
	}
}
