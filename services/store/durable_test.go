// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newTestWriter(t *testing.T) *durableWriter {
	t.Helper()
	return &durableWriter{
		path:   filepath.Join(t.TempDir(), "users.json"),
		codec:  UsersCodec{},
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

func TestDurableWriter(t *testing.T) {
	t.Run("first write creates canonical without backup", func(t *testing.T) {
		w := newTestWriter(t)
		if err := w.write([]byte(`[]`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := os.ReadFile(w.path)
		if err != nil {
			t.Fatalf("reading canonical: %v", err)
		}
		if string(got) != "[]" {
			t.Errorf("canonical = %q", got)
		}
		if _, err := os.Stat(w.backupPath()); !os.IsNotExist(err) {
			t.Errorf("backup should not exist on first write")
		}
		if _, err := os.Stat(w.tempPath()); !os.IsNotExist(err) {
			t.Errorf("temp sibling should be gone after commit")
		}
	})

	t.Run("second write snapshots previous content into backup", func(t *testing.T) {
		w := newTestWriter(t)
		if err := w.write([]byte(`[{"id":"u1","username":"ada","password":"h","createdAt":"2025-03-01T10:00:00Z","preferences":{}}]`)); err != nil {
			t.Fatalf("first write: %v", err)
		}
		first, _ := os.ReadFile(w.path)

		if err := w.write([]byte(`[]`)); err != nil {
			t.Fatalf("second write: %v", err)
		}
		backup, err := os.ReadFile(w.backupPath())
		if err != nil {
			t.Fatalf("reading backup: %v", err)
		}
		if string(backup) != string(first) {
			t.Errorf("backup does not hold pre-write content")
		}
	})

	t.Run("validation failure leaves canonical intact", func(t *testing.T) {
		w := newTestWriter(t)
		if err := w.write([]byte(`[]`)); err != nil {
			t.Fatalf("seed write: %v", err)
		}

		err := w.write([]byte(`[{"id":"u1", truncated`))
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("expected ErrValidationFailed, got %v", err)
		}

		got, readErr := os.ReadFile(w.path)
		if readErr != nil {
			t.Fatalf("reading canonical: %v", readErr)
		}
		if string(got) != "[]" {
			t.Errorf("canonical changed after failed validation: %q", got)
		}
		if _, statErr := os.Stat(w.tempPath()); !os.IsNotExist(statErr) {
			t.Errorf("temp sibling left behind after failed validation")
		}
	})

	t.Run("stray temp sibling never shadows canonical", func(t *testing.T) {
		// A crash between temp write and rename leaves a .tmp sibling.
		// It must be invisible to readers and harmless to the next write.
		w := newTestWriter(t)
		if err := w.write([]byte(`[]`)); err != nil {
			t.Fatalf("seed write: %v", err)
		}
		if err := os.WriteFile(w.tempPath(), []byte(`[{"id":"ghost"`), 0o644); err != nil {
			t.Fatalf("planting stray temp: %v", err)
		}

		got, err := os.ReadFile(w.path)
		if err != nil {
			t.Fatalf("reading canonical: %v", err)
		}
		if string(got) != "[]" {
			t.Errorf("canonical affected by stray temp: %q", got)
		}

		if err := w.write([]byte(`[]`)); err != nil {
			t.Fatalf("write over stray temp: %v", err)
		}
	})
}
