// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
)

// repairer recovers a document file whose canonical content fails to decode.
type repairer struct {
	path   string
	codec  Codec
	logger *slog.Logger
}

func (r *repairer) backupPath() string { return r.path + ".backup" }

// repair attempts recovery in order of preference.
//
// # Description
//
// (a) If a backup sibling exists and itself decodes, copy it over canonical.
// (b) Else scan the raw canonical bytes for the last top-level terminator,
// truncate there, and if the prefix decodes, rewrite canonical with the
// re-serialized value. Both rewrites go through the temp-then-rename path so
// a crash mid-repair cannot make things worse.
//
// # Outputs
//
//   - error: nil when canonical decodes again; ErrCorruption when neither
//     strategy succeeded and the caller should degrade to an empty document.
func (r *repairer) repair() error {
	if err := r.restoreBackup(); err == nil {
		repairsTotal.WithLabelValues("backup", "success").Inc()
		r.logger.Info("repaired canonical from backup")
		return nil
	}

	if err := r.truncateToLastValid(); err == nil {
		repairsTotal.WithLabelValues("truncate", "success").Inc()
		r.logger.Info("repaired canonical by prefix truncation")
		return nil
	}

	repairsTotal.WithLabelValues("none", "failed").Inc()
	r.logger.Error("corruption repair failed, canonical is unrecoverable",
		slog.String("path", r.path))
	return fmt.Errorf("%w: repair exhausted for %s", ErrCorruption, r.path)
}

// restoreBackup copies a decodable backup over canonical.
func (r *repairer) restoreBackup() error {
	data, err := os.ReadFile(r.backupPath())
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}
	if err := r.codec.Validate(data); err != nil {
		repairsTotal.WithLabelValues("backup", "invalid").Inc()
		return fmt.Errorf("backup does not decode: %w", err)
	}
	return r.rewrite(data)
}

// truncateToLastValid scans backwards for the document terminator and keeps
// the longest decodable prefix.
func (r *repairer) truncateToLastValid() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading canonical: %w", err)
	}

	terminator := r.codec.Terminator()
	search := raw
	for {
		idx := bytes.LastIndexByte(search, terminator)
		if idx < 0 {
			return fmt.Errorf("no terminator %q in canonical", terminator)
		}
		prefix := search[:idx+1]

		normalized, err := r.codec.Normalize(prefix)
		if err == nil {
			return r.rewrite(normalized)
		}
		// Keep scanning earlier terminators; nested arrays/objects close
		// with the same byte as the top level.
		search = search[:idx]
	}
}

// rewrite replaces canonical atomically without touching the backup.
func (r *repairer) rewrite(data []byte) error {
	tmpPath := r.path + ".repair"
	if err := writeFileSync(tmpPath, data); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing repair temp: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming repair temp: %w", err)
	}
	return nil
}
