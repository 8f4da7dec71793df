// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cinelog/cinelog/pkg/logging"
	"github.com/cinelog/cinelog/pkg/ux"
	"github.com/cinelog/cinelog/services/store"
)

var (
	dataDir     string
	personality string

	rootCmd = &cobra.Command{
		Use:   "cinelog",
		Short: "A CLI to inspect and maintain a Cinelog data directory",
		Long: `Cinelog is a self-hosted movie journal. This tool administers its
file-backed store: initialize a data directory, list accounts, show
tracking statistics, and repair damaged document files.`,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory with an empty user collection",
		Run:   runInit,
	}

	usersCmd = &cobra.Command{
		Use:   "users",
		Short: "Inspect stored accounts",
	}
	listUsersCmd = &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Run:   runListUsers,
	}
	showUserCmd = &cobra.Command{
		Use:   "show [username]",
		Short: "Show one account with its tracking summary",
		Args:  cobra.ExactArgs(1),
		Run:   runShowUser,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show collection-wide tracking statistics",
		Run:   runStats,
	}

	repairCmd = &cobra.Command{
		Use:   "repair",
		Short: "Verify the document files and rewrite them normalized",
		Long: `Reads every document file under the store's full recovery discipline
(backup restore, prefix truncation) and rewrites the canonical files in
normalized form. Safe to run while the gateway is up; the marker lock
serializes against live writers.`,
		Run: runRepair,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory (defaults to $CINELOG_DATA_DIR, then ~/.cinelog/data)")
	rootCmd.PersistentFlags().StringVar(&personality, "output", "",
		"output style: full, minimal, or machine")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if personality != "" {
			ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personality))
		}
	}

	usersCmd.AddCommand(listUsersCmd, showUserCmd)
	rootCmd.AddCommand(initCmd, usersCmd, statsCmd, repairCmd)
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if env := os.Getenv("CINELOG_DATA_DIR"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cinelog/data"
	}
	return filepath.Join(home, ".cinelog", "data")
}

// openStore builds the Store handle every subcommand works through.
func openStore() (*store.Store, *logging.Logger, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("CINELOG_LOG_LEVEL")),
		Service: "cli",
	})

	s, err := store.Open(store.Config{
		Dir:    resolveDataDir(),
		Logger: logger.Slog(),
	})
	if err != nil {
		return nil, nil, err
	}
	return s, logger, nil
}
