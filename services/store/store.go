// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store is the crash-safe, concurrency-tolerant document store
// underneath the Cinelog backend. It persists the user collection and the
// per-user side documents on plain files, re-implementing by hand what a
// database normally provides: mutual exclusion (marker-file lock), atomic
// commit (backup, temp write, validate, rename), and crash recovery
// (backup restore or prefix truncation).
//
// Writes pass through a single discipline: acquire the cross-process lock,
// re-read fresh state, apply one mutation, commit durably, release. Reads
// are unlocked and best-effort. No component writes the canonical files
// directly.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cinelog/cinelog/services/store/lock"
	"github.com/cinelog/cinelog/services/tracking"
)

var storeTracer = otel.Tracer("cinelog.store")

// loggerWithTrace returns a logger with trace context attached so log lines
// can be correlated with spans.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// Config configures a Store handle.
type Config struct {
	// Dir is the data directory. The canonical collection lives at
	// Dir/users.json; per-user documents under Dir/userdocs/.
	Dir string

	// SessionID identifies this handle in lock markers. Generated when
	// empty.
	SessionID string

	// Logger receives structured store logs. Defaults to slog.Default().
	Logger *slog.Logger

	// RetryAttempts and RetryBackoff override the outer retry budget.
	// Zero means the production defaults (5 attempts, 50ms base).
	RetryAttempts int
	RetryBackoff  time.Duration

	// LockMaxWait and LockStaleAfter override the lock budgets. Zero
	// means the production defaults (3s wait, 30s staleness).
	LockMaxWait    time.Duration
	LockStaleAfter time.Duration
}

// Store is an explicit handle over the data directory, passed into handlers
// and shut down with Close. There is deliberately no package-global
// instance; lifecycle is owned by whoever opened it.
//
// # Thread Safety
//
// Safe for concurrent use. In-process writers are serialized on a mutex so
// the stale-lock heuristic is only ever exercised across processes; the
// marker file remains the cross-process serialization point.
type Store struct {
	cfg    Config
	dir    string
	logger *slog.Logger

	mutator *tracking.Mutator

	users     *managedFile
	usersLock *lock.Manager

	// writeMu is the in-process single-writer gate for all documents.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Open creates the data directory layout and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store: data directory not configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "userdocs"), 0o750); err != nil {
		return nil, fmt.Errorf("creating userdocs directory: %w", err)
	}

	logger := cfg.Logger.With(slog.String("component", "store"))
	usersPath := filepath.Join(cfg.Dir, "users.json")

	lockCfg := lock.DefaultConfig(usersPath + ".lock")
	lockCfg.SessionID = cfg.SessionID
	if cfg.LockMaxWait != 0 {
		lockCfg.MaxWait = cfg.LockMaxWait
	}
	if cfg.LockStaleAfter != 0 {
		lockCfg.StaleAfter = cfg.LockStaleAfter
	}
	usersLock, err := lock.New(lockCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating lock manager: %w", err)
	}

	retry := retryPolicy{attempts: cfg.RetryAttempts, backoff: cfg.RetryBackoff}

	s := &Store{
		cfg:       cfg,
		dir:       cfg.Dir,
		logger:    logger,
		mutator:   tracking.NewMutator(logger),
		usersLock: usersLock,
		users:     newManagedFile(usersPath, UsersCodec{}, usersLock, retry, logger),
	}
	return s, nil
}

// Bootstrap writes an empty canonical collection when none exists, so a
// fresh deployment starts from a valid array instead of a missing file.
func (s *Store) Bootstrap(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(s.users.path); err == nil {
		return nil
	}
	return s.users.write(ctx, "bootstrap", func(current []byte) ([]byte, error) {
		if len(current) > 0 {
			return nil, errNoChange
		}
		return UsersCodec{}.Empty(), nil
	})
}

// Close releases lock managers. Held locks are released; in-flight
// operations finish against a closed handle with ErrClosed on their next
// call.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.usersLock.Close()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Dir returns the data directory this handle owns.
func (s *Store) Dir() string { return s.dir }

// update runs one locked read-mutate-write cycle over the user collection.
// The callback sees freshly decoded state on every retry.
func (s *Store) update(ctx context.Context, reason string, fn func(users []tracking.UserRecord) ([]tracking.UserRecord, error)) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.users.write(ctx, reason, func(current []byte) ([]byte, error) {
		var users []tracking.UserRecord
		if len(current) > 0 {
			decoded, err := DecodeUsers(current)
			if err != nil {
				// The locked read path already ran repair; an error
				// here means degrade-to-empty was chosen.
				decoded = nil
			}
			users = decoded
		}

		next, err := fn(users)
		if err != nil {
			return nil, err
		}
		return EncodeUsers(next)
	})
}
