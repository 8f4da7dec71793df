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
	"path/filepath"

	"github.com/cinelog/cinelog/services/store/lock"
	"github.com/cinelog/cinelog/services/tracking"
)

// userDocFile builds a managedFile for one per-user document. Each document
// gets its own marker lock beside it, so cross-process writers to different
// users never contend. Lock managers are created per call; the marker file
// on disk is the real serialization point and holds no in-process state
// worth caching.
func (s *Store) userDocFile(userID string) (*managedFile, *lock.Manager, error) {
	path := filepath.Join(s.dir, "userdocs", userID+".json")

	cfg := lock.DefaultConfig(path + ".lock")
	cfg.SessionID = s.cfg.SessionID
	cfg.WatchExternal = false
	if s.cfg.LockMaxWait != 0 {
		cfg.MaxWait = s.cfg.LockMaxWait
	}
	if s.cfg.LockStaleAfter != 0 {
		cfg.StaleAfter = s.cfg.LockStaleAfter
	}
	mgr, err := lock.New(cfg, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating lock for user document: %w", err)
	}

	retry := retryPolicy{attempts: s.cfg.RetryAttempts, backoff: s.cfg.RetryBackoff}
	return newManagedFile(path, UserDocCodec{}, mgr, retry, s.logger), mgr, nil
}

// LoadUserDoc returns the user's side document (lists, journal, favorites).
// A missing or unrecoverable document reads as a fresh empty one.
func (s *Store) LoadUserDoc(ctx context.Context, userID string) (*tracking.UserDoc, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := storeTracer.Start(ctx, "store.LoadUserDoc")
	defer span.End()

	f, mgr, err := s.userDocFile(userID)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()

	raw, err := f.read(ctx)
	if err != nil {
		if errors.Is(err, ErrCorruption) {
			degradedReadsTotal.Inc()
			loggerWithTrace(ctx, s.logger).Error("user document unrecoverable, serving empty",
				slog.String("path", f.path),
				slog.String("error", err.Error()))
			return tracking.NewUserDoc(), nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return tracking.NewUserDoc(), nil
	}

	doc, err := DecodeUserDoc(raw)
	if err != nil {
		degradedReadsTotal.Inc()
		loggerWithTrace(ctx, s.logger).Error("user document undecodable after repair, serving empty",
			slog.String("path", f.path),
			slog.String("error", err.Error()))
		return tracking.NewUserDoc(), nil
	}
	return doc, nil
}

// UpdateUserDoc runs one locked mutation over the user's side document.
// The callback sees a fresh decode on every retry; a missing document
// starts from an empty one.
func (s *Store) UpdateUserDoc(ctx context.Context, userID, reason string, fn func(doc *tracking.UserDoc) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	ctx, span := storeTracer.Start(ctx, "store.UpdateUserDoc")
	defer span.End()

	f, mgr, err := s.userDocFile(userID)
	if err != nil {
		return err
	}
	defer mgr.Close()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return f.write(ctx, reason, func(current []byte) ([]byte, error) {
		doc := tracking.NewUserDoc()
		if len(current) > 0 {
			if decoded, decodeErr := DecodeUserDoc(current); decodeErr == nil {
				doc = decoded
			}
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		return EncodeUserDoc(doc)
	})
}
