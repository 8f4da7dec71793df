// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinelog/cinelog/pkg/ux"
	"github.com/cinelog/cinelog/services/tracking"
)

func runInit(cmd *cobra.Command, args []string) {
	s, logger, err := openStore()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the store: %v", err))
		return
	}
	defer s.Close()
	defer logger.Close()

	if err := s.Bootstrap(context.Background()); err != nil {
		ux.Error(fmt.Sprintf("Bootstrap failed: %v", err))
		return
	}
	ux.Success(fmt.Sprintf("Data directory ready at %s", s.Dir()))
}

func runListUsers(cmd *cobra.Command, args []string) {
	s, logger, err := openStore()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the store: %v", err))
		return
	}
	defer s.Close()
	defer logger.Close()

	users, err := s.Load(context.Background())
	if err != nil {
		ux.Error(fmt.Sprintf("Could not load the user collection: %v", err))
		return
	}
	if len(users) == 0 {
		ux.Muted("No accounts yet.")
		return
	}

	ux.Title(fmt.Sprintf("Accounts (%d)", len(users)))
	for _, u := range users {
		sessions := 0
		if u.Tracking != nil {
			sessions = u.Tracking.TotalSessions
		}
		lastLogin := "never"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Format(time.RFC3339)
		}
		ux.Info(fmt.Sprintf("%-20s sessions=%-4d last_login=%s", u.Username, sessions, lastLogin))
	}
}

func runShowUser(cmd *cobra.Command, args []string) {
	s, logger, err := openStore()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the store: %v", err))
		return
	}
	defer s.Close()
	defer logger.Close()

	u, err := s.FindUserByUsername(context.Background(), args[0])
	if err != nil {
		ux.Error(fmt.Sprintf("Could not find %q: %v", args[0], err))
		return
	}

	ux.Title(u.Username)
	ux.KeyValue("id", u.ID)
	ux.KeyValue("created", u.CreatedAt.Format(time.RFC3339))
	if u.LastLogin != nil {
		ux.KeyValue("last login", u.LastLogin.Format(time.RFC3339))
	}

	if u.Tracking == nil {
		ux.Muted("No tracking data recorded.")
		return
	}
	td := u.Tracking
	ux.KeyValue("first visit", td.FirstVisit.Format(time.RFC3339))
	ux.KeyValue("total sessions", fmt.Sprintf("%d", td.TotalSessions))
	ux.KeyValue("page views", fmt.Sprintf("%d", td.Behavior.TotalPageViews))
	ux.KeyValue("searches", fmt.Sprintf("%d", len(td.Behavior.SearchQueries)))
	ux.KeyValue("movies added", fmt.Sprintf("%d", td.Behavior.MoviesAdded))
	ux.KeyValue("journal entries", fmt.Sprintf("%d", td.Behavior.JournalEntries))
	avg := tracking.AverageSessionDuration(td.Sessions)
	ux.KeyValue("avg session", (time.Duration(avg) * time.Millisecond).String())
}

func runStats(cmd *cobra.Command, args []string) {
	s, logger, err := openStore()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the store: %v", err))
		return
	}
	defer s.Close()
	defer logger.Close()

	users, err := s.Load(context.Background())
	if err != nil {
		ux.Error(fmt.Sprintf("Could not load the user collection: %v", err))
		return
	}

	var sessions, pageViews, searches, journal int
	for _, u := range users {
		if u.Tracking == nil {
			continue
		}
		sessions += u.Tracking.TotalSessions
		pageViews += u.Tracking.Behavior.TotalPageViews
		searches += len(u.Tracking.Behavior.SearchQueries)
		journal += u.Tracking.Behavior.JournalEntries
	}

	ux.Title("Cinelog store statistics")
	ux.KeyValue("data dir", s.Dir())
	ux.KeyValue("accounts", fmt.Sprintf("%d", len(users)))
	ux.KeyValue("sessions", fmt.Sprintf("%d", sessions))
	ux.KeyValue("page views", fmt.Sprintf("%d", pageViews))
	ux.KeyValue("searches", fmt.Sprintf("%d", searches))
	ux.KeyValue("journal entries", fmt.Sprintf("%d", journal))
}

func runRepair(cmd *cobra.Command, args []string) {
	s, logger, err := openStore()
	if err != nil {
		ux.Error(fmt.Sprintf("Could not open the store: %v", err))
		return
	}
	defer s.Close()
	defer logger.Close()

	spinner := ux.NewSpinner("Verifying document files")
	spinner.Start()

	// An identity mutation runs the full read-repair-validate-rewrite
	// cycle and leaves the canonical file normalized.
	err = s.Update(context.Background(), "repair", func(users []tracking.UserRecord) ([]tracking.UserRecord, error) {
		return users, nil
	})
	spinner.Stop()

	if err != nil {
		ux.Error(fmt.Sprintf("Repair failed: %v", err))
		return
	}

	users, err := s.Load(context.Background())
	if err != nil {
		ux.Error(fmt.Sprintf("Post-repair read failed: %v", err))
		return
	}
	ux.Success(fmt.Sprintf("Canonical collection verified, %d accounts intact", len(users)))
}
