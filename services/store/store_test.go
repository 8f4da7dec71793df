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
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cinelog/cinelog/services/tracking"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Dir:    t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreLifecycle(t *testing.T) {
	t.Run("bootstrap writes an empty collection once", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		if err := s.Bootstrap(ctx); err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		raw, err := os.ReadFile(filepath.Join(s.Dir(), "users.json"))
		if err != nil {
			t.Fatalf("canonical missing after bootstrap: %v", err)
		}
		if len(raw) == 0 {
			t.Fatal("canonical empty after bootstrap")
		}
		// Second bootstrap is a no-op.
		if err := s.Bootstrap(ctx); err != nil {
			t.Fatalf("repeat Bootstrap: %v", err)
		}
	})

	t.Run("operations after Close return ErrClosed", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := s.Load(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
		// Close is idempotent.
		if err := s.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
	})

	t.Run("missing file loads as empty collection", func(t *testing.T) {
		s := newTestStore(t)
		users, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(users) != 0 {
			t.Fatalf("expected empty collection, got %d users", len(users))
		}
	})
}

func TestCreateUser(t *testing.T) {
	t.Run("signup then lookup", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		u, err := s.CreateUser(ctx, "ada", "$2a$10$hash", nil)
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if u.ID == "" {
			t.Fatal("expected generated id")
		}

		got, err := s.FindUserByUsername(ctx, "ada")
		if err != nil {
			t.Fatalf("FindUserByUsername: %v", err)
		}
		if got.ID != u.ID || got.PasswordHash != "$2a$10$hash" {
			t.Errorf("lookup mismatch: %+v", got)
		}

		if _, err := s.FindUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		if _, err := s.CreateUser(ctx, "ada", "h1", nil); err != nil {
			t.Fatalf("first CreateUser: %v", err)
		}
		if _, err := s.CreateUser(ctx, "ada", "h2", nil); !errors.Is(err, ErrUsernameTaken) {
			t.Fatalf("expected ErrUsernameTaken, got %v", err)
		}
		users, _ := s.Load(ctx)
		if len(users) != 1 {
			t.Errorf("expected 1 user after rejected duplicate, got %d", len(users))
		}
	})
}

func TestUpdatePreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "ada", "h", nil)
	if err != nil {
		t.Fatal(err)
	}
	if u.Preferences != (tracking.Preferences{}) {
		t.Errorf("expected zero preferences on a new account, got %+v", u.Preferences)
	}

	prefs := tracking.Preferences{Theme: "dark", Language: "en", EmailNotifications: true}
	if err := s.UpdatePreferences(ctx, u.ID, prefs); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	got, err := s.FindUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Preferences != prefs {
		t.Errorf("preferences not persisted: %+v", got.Preferences)
	}

	if err := s.UpdatePreferences(ctx, "no-such-id", prefs); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "ada", "h", nil)
	if err != nil {
		t.Fatal(err)
	}

	seed := tracking.SessionSeed{IPAddress: "10.0.0.9", UserAgent: "test-agent"}
	sessionID, loginAt, err := s.RecordLogin(ctx, u.ID, seed)
	if err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected session id")
	}
	if loginAt.IsZero() {
		t.Fatal("expected stamped login time")
	}

	got, err := s.FindUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastLogin == nil {
		t.Error("LastLogin not stamped")
	} else if !got.LastLogin.Equal(loginAt) {
		t.Errorf("returned login time %v does not match stored %v", loginAt, *got.LastLogin)
	}
	if got.Tracking == nil || got.Tracking.TotalSessions != 1 {
		t.Fatalf("expected 1 session, got %+v", got.Tracking)
	}
	sess := got.Tracking.Sessions[0]
	if sess.ID != sessionID || sess.IPAddress != "10.0.0.9" {
		t.Errorf("session mismatch: %+v", sess)
	}

	if _, _, err := s.RecordLogin(ctx, "missing", seed); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestApplyEvent(t *testing.T) {
	now := time.Now().UnixMilli()

	t.Run("pageview lands durably", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		u, _ := s.CreateUser(ctx, "ada", "h", nil)
		sessionID, _, _ := s.RecordLogin(ctx, u.ID, tracking.SessionSeed{})

		outcome, err := s.ApplyEvent(ctx, tracking.Event{
			UserID:    u.ID,
			SessionID: sessionID,
			Type:      tracking.EventPageView,
			Payload: tracking.EventPayload{
				ID: "pv1", URL: "/movies/heat", Title: "Heat", Timestamp: now,
			},
		})
		if err != nil {
			t.Fatalf("ApplyEvent: %v", err)
		}
		if outcome != tracking.OutcomeApplied {
			t.Fatalf("outcome = %s", outcome)
		}

		got, _ := s.FindUserByID(ctx, u.ID)
		if got.Tracking.Behavior.TotalPageViews != 1 {
			t.Errorf("TotalPageViews = %d", got.Tracking.Behavior.TotalPageViews)
		}
		if len(got.Tracking.Sessions[0].PageViews) != 1 {
			t.Errorf("pageview not appended to session")
		}
	})

	t.Run("unknown user skips the durable write", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		if _, err := s.CreateUser(ctx, "ada", "h", nil); err != nil {
			t.Fatal(err)
		}
		before, err := os.ReadFile(filepath.Join(s.Dir(), "users.json"))
		if err != nil {
			t.Fatal(err)
		}

		outcome, err := s.ApplyEvent(ctx, tracking.Event{
			UserID:    "ghost",
			SessionID: "s1",
			Type:      tracking.EventPageView,
			Payload:   tracking.EventPayload{ID: "pv1", URL: "/", Title: "Home", Timestamp: now},
		})
		if err != nil {
			t.Fatalf("ApplyEvent: %v", err)
		}
		if outcome != tracking.OutcomeIgnoredUnknownUser {
			t.Fatalf("outcome = %s", outcome)
		}

		after, err := os.ReadFile(filepath.Join(s.Dir(), "users.json"))
		if err != nil {
			t.Fatal(err)
		}
		if string(before) != string(after) {
			t.Error("canonical rewritten for an ignored event")
		}
	})

	t.Run("event for unseen session synthesizes it", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		u, _ := s.CreateUser(ctx, "ada", "h", nil)
		outcome, err := s.ApplyEvent(ctx, tracking.Event{
			UserID:    u.ID,
			SessionID: "client-made",
			Type:      tracking.EventPageView,
			Payload:   tracking.EventPayload{ID: "pv1", URL: "/", Title: "Home", Timestamp: now},
		})
		if err != nil || outcome != tracking.OutcomeApplied {
			t.Fatalf("outcome=%s err=%v", outcome, err)
		}

		got, _ := s.FindUserByID(ctx, u.ID)
		if got.Tracking == nil || len(got.Tracking.Sessions) != 1 {
			t.Fatalf("session not synthesized: %+v", got.Tracking)
		}
		if got.Tracking.Sessions[0].ID != "client-made" {
			t.Errorf("session id = %s", got.Tracking.Sessions[0].ID)
		}
	})
}

func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "ada", "h", nil)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	now := time.Now().UnixMilli()

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ApplyEvent(ctx, tracking.Event{
				UserID:    u.ID,
				SessionID: fmt.Sprintf("sess-%d", i),
				Type:      tracking.EventPageView,
				Payload: tracking.EventPayload{
					ID:        fmt.Sprintf("pv-%d", i),
					URL:       fmt.Sprintf("/page/%d", i),
					Title:     "Page",
					Timestamp: now,
				},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	got, err := s.FindUserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tracking.Behavior.TotalPageViews != writers {
		t.Errorf("TotalPageViews = %d, want %d; a concurrent update was lost",
			got.Tracking.Behavior.TotalPageViews, writers)
	}
	if len(got.Tracking.Sessions) != writers {
		t.Errorf("sessions = %d, want %d", len(got.Tracking.Sessions), writers)
	}
}

func TestLoadDegradesOnUnrecoverableCorruption(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(s.Dir(), "users.json")
	if err := os.WriteFile(path, []byte("hopeless"), 0o644); err != nil {
		t.Fatal(err)
	}

	users, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load should degrade, not fail: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty collection, got %d", len(users))
	}

	// The next write normalizes the canonical from scratch.
	if _, err := s.CreateUser(ctx, "ada", "h", nil); err != nil {
		t.Fatalf("CreateUser after corruption: %v", err)
	}
	users, err = s.Load(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected recovered collection with 1 user, err=%v n=%d", err, len(users))
	}
}

func TestUserDocs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing document loads empty", func(t *testing.T) {
		doc, err := s.LoadUserDoc(ctx, "u1")
		if err != nil {
			t.Fatalf("LoadUserDoc: %v", err)
		}
		if len(doc.Favorites) != 0 || len(doc.Lists) != 0 {
			t.Errorf("expected empty doc, got %+v", doc)
		}
	})

	t.Run("update then load round trips", func(t *testing.T) {
		err := s.UpdateUserDoc(ctx, "u1", "add_favorite", func(doc *tracking.UserDoc) error {
			doc.Favorites = append(doc.Favorites, "tt0113277")
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateUserDoc: %v", err)
		}

		doc, err := s.LoadUserDoc(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(doc.Favorites) != 1 || doc.Favorites[0] != "tt0113277" {
			t.Errorf("favorites = %v", doc.Favorites)
		}
	})

	t.Run("documents are isolated per user", func(t *testing.T) {
		doc, err := s.LoadUserDoc(ctx, "u2")
		if err != nil {
			t.Fatal(err)
		}
		if len(doc.Favorites) != 0 {
			t.Errorf("u2 sees u1 favorites: %v", doc.Favorites)
		}
	})
}
