/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/slotcast/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a diagnostics bearer token",
	Long:  "Sign a token for the cache and history endpoints with SLOTCAST_JWT_SIGNING_KEY",
	RunE:  runToken,
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	token, err := auth.Issue([]byte(cfg.JWTSigningKey), tokenSubject, []string{auth.ScopeDiagnostics}, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
