// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cinelog/cinelog/services/tracking"
)

// ----------------------------------------------------------------------------
// Reads
// ----------------------------------------------------------------------------

// Load returns the current user collection. A missing file yields an empty
// slice. Unrecoverable corruption degrades to an empty slice with an error
// log rather than failing the caller; the canonical file is left for a
// later write to normalize.
func (s *Store) Load(ctx context.Context) ([]tracking.UserRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := storeTracer.Start(ctx, "store.Load")
	defer span.End()

	raw, err := s.users.read(ctx)
	if err != nil {
		if errors.Is(err, ErrCorruption) {
			degradedReadsTotal.Inc()
			loggerWithTrace(ctx, s.logger).Error("user collection unrecoverable, serving empty",
				slog.String("path", s.users.path),
				slog.String("error", err.Error()))
			return []tracking.UserRecord{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []tracking.UserRecord{}, nil
	}

	users, err := DecodeUsers(raw)
	if err != nil {
		degradedReadsTotal.Inc()
		loggerWithTrace(ctx, s.logger).Error("user collection undecodable after repair, serving empty",
			slog.String("path", s.users.path),
			slog.String("error", err.Error()))
		return []tracking.UserRecord{}, nil
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))
	return users, nil
}

// FindUserByUsername returns the first record with the given username, or
// ErrNotFound.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*tracking.UserRecord, error) {
	users, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			u := users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

// FindUserByID returns the record with the given id, or ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, id string) (*tracking.UserRecord, error) {
	users, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
}

// ----------------------------------------------------------------------------
// Writes
// ----------------------------------------------------------------------------

// ErrUsernameTaken is returned by CreateUser when the username already
// exists in the collection.
var ErrUsernameTaken = errors.New("store: username already taken")

// CreateUser appends a new user record. The uniqueness check runs inside
// the locked write cycle against fresh state, so two concurrent signups
// for the same username cannot both land. A non-nil seed carries the
// client's device/location snapshot into the new record; lifecycle fields
// (first visit, session list, counters) are reset regardless of what the
// client sent.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, seed *tracking.TrackingData) (*tracking.UserRecord, error) {
	ctx, span := storeTracer.Start(ctx, "store.CreateUser")
	defer span.End()

	rec := tracking.UserRecord{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
		Preferences:  tracking.Preferences{},
	}
	if seed != nil {
		td := *seed
		td.FirstVisit = rec.CreatedAt
		td.LastUpdated = rec.CreatedAt
		td.TotalSessions = 0
		td.Sessions = []tracking.SessionRecord{}
		if td.Behavior.MostVisitedPages == nil {
			td.Behavior.MostVisitedPages = []string{}
		}
		if td.Behavior.SearchQueries == nil {
			td.Behavior.SearchQueries = []string{}
		}
		rec.Tracking = &td
	}

	err := s.update(ctx, "create_user", func(users []tracking.UserRecord) ([]tracking.UserRecord, error) {
		for i := range users {
			if users[i].Username == username {
				return nil, ErrUsernameTaken
			}
		}
		return append(users, rec), nil
	})
	if err != nil {
		return nil, err
	}

	loggerWithTrace(ctx, s.logger).Info("user created",
		slog.String("user_id", rec.ID),
		slog.String("username", username))
	return &rec, nil
}

// RecordLogin stamps LastLogin and starts a tracking session for the user.
// The returned session id is what the client echoes back on subsequent
// tracking events; the returned time is the stamped LastLogin, so callers
// do not have to re-read the record they just mutated.
func (s *Store) RecordLogin(ctx context.Context, userID string, seed tracking.SessionSeed) (string, time.Time, error) {
	ctx, span := storeTracer.Start(ctx, "store.RecordLogin")
	defer span.End()

	var (
		sessionID string
		loginAt   time.Time
	)
	err := s.update(ctx, "record_login", func(users []tracking.UserRecord) ([]tracking.UserRecord, error) {
		for i := range users {
			if users[i].ID == userID {
				now := time.Now().UTC()
				users[i].LastLogin = &now
				sessionID = tracking.StartSession(&users[i], seed, now).ID
				loginAt = now
				return users, nil
			}
		}
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return sessionID, loginAt, nil
}

// ApplyEvent folds one tracking event into the collection and reports the
// outcome. Outcomes that leave the collection untouched skip the durable
// write entirely; the canonical file is not rewritten for events addressed
// to unknown users.
func (s *Store) ApplyEvent(ctx context.Context, ev tracking.Event) (tracking.Outcome, error) {
	if err := s.checkOpen(); err != nil {
		return tracking.OutcomeIgnoredUnknownUser, err
	}
	ctx, span := storeTracer.Start(ctx, "store.ApplyEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.user_id", ev.UserID),
	)

	outcome := tracking.OutcomeIgnoredUnknownUser
	err := s.update(ctx, "apply_event", func(users []tracking.UserRecord) ([]tracking.UserRecord, error) {
		outcome = s.mutator.Apply(users, ev)
		if !outcome.Applied() {
			return nil, errNoChange
		}
		return users, nil
	})
	if err != nil {
		return outcome, err
	}

	span.SetAttributes(attribute.String("event.outcome", outcome.String()))
	return outcome, nil
}

// UpdatePreferences replaces the user's preferences wholesale.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, prefs tracking.Preferences) error {
	return s.update(ctx, "update_preferences", func(users []tracking.UserRecord) ([]tracking.UserRecord, error) {
		for i := range users {
			if users[i].ID == userID {
				users[i].Preferences = prefs
				return users, nil
			}
		}
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	})
}

// Update runs an arbitrary mutation over the collection under the full
// write discipline. The callback runs against fresh state on every retry
// and must be idempotent.
func (s *Store) Update(ctx context.Context, reason string, fn func(users []tracking.UserRecord) ([]tracking.UserRecord, error)) error {
	ctx, span := storeTracer.Start(ctx, "store.Update")
	defer span.End()
	return s.update(ctx, reason, fn)
}
