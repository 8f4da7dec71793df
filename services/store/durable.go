// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// durableWriter commits one document file so the canonical path is never
// observed half-written: backup, temp write, readback validation, atomic
// rename. Must run while the file's lock is held; callers guarantee that.
type durableWriter struct {
	path   string
	codec  Codec
	logger *slog.Logger
}

func (w *durableWriter) backupPath() string { return w.path + ".backup" }
func (w *durableWriter) tempPath() string   { return w.path + ".tmp" }

// write runs the full commit sequence for data.
//
// # Description
//
// (1) If the canonical file exists, copy it to the backup sibling, best
// effort, failure is logged, not fatal. (2) Write data to the temp sibling
// and fsync. (3) Read the temp content back and decode it to confirm it is
// not truncated or corrupt. (4) Atomically rename temp over canonical and
// sync the directory. (5) On validation failure, restore canonical from the
// backup and raise ErrValidationFailed regardless.
func (w *durableWriter) write(data []byte) error {
	if _, err := os.Stat(w.path); err == nil {
		if err := copyFile(w.path, w.backupPath()); err != nil {
			w.logger.Warn("backup copy failed, continuing",
				slog.String("error", err.Error()))
		}
	}

	tmpPath := w.tempPath()
	if err := writeFileSync(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp sibling: %w", err)
	}

	readback, err := os.ReadFile(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("reading back temp sibling: %w", err)
	}
	if err := w.codec.Validate(readback); err != nil {
		_ = os.Remove(tmpPath)
		w.restoreFromBackup()
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename: %w", err)
	}

	if err := syncDir(filepath.Dir(w.path)); err != nil {
		// The rename itself succeeded, the data is visible.
		w.logger.Warn("directory sync failed",
			slog.String("error", err.Error()))
	}
	return nil
}

// restoreFromBackup copies the backup over canonical after a validation
// failure, best effort.
func (w *durableWriter) restoreFromBackup() {
	if _, err := os.Stat(w.backupPath()); err != nil {
		return
	}
	if err := copyFile(w.backupPath(), w.path); err != nil {
		w.logger.Error("restoring canonical from backup failed",
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("restored canonical from backup after validation failure")
}

// -----------------------------------------------------------------------------
// Filesystem helpers
// -----------------------------------------------------------------------------

// writeFileSync writes data and fsyncs before closing.
func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// copyFile copies src to dst with fsync.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// syncDir fsyncs a directory so a rename survives power loss on all
// filesystems.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
