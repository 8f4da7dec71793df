// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"encoding/json"
	"os"
	"time"
)

// LockInfo describes the holder of a lock marker file.
//
// # Description
//
// The marker file itself is the mutual-exclusion primitive (its exclusive
// creation is what serializes writers); the JSON body is metadata for
// staleness checks and debugging.
type LockInfo struct {
	// Path is the canonical file this marker guards.
	Path string `json:"path"`

	// PID is the process that created the marker.
	PID int `json:"pid"`

	// SessionID identifies the logical owner (one per Store handle).
	SessionID string `json:"sessionId"`

	// LockedAt is when the marker was created.
	LockedAt time.Time `json:"lockedAt"`

	// Reason is a human-readable note for debugging.
	Reason string `json:"reason,omitempty"`
}

// Age returns how long ago the marker was created.
func (i *LockInfo) Age() time.Duration {
	return time.Since(i.LockedAt)
}

// IsStale reports whether the holder should be presumed dead.
//
// # Description
//
// A marker is stale when it is older than the staleness threshold, or when
// its recorded PID no longer maps to a live process. Either condition lets
// the next acquirer force-clear the marker; there is no background janitor.
func (i *LockInfo) IsStale(threshold time.Duration) bool {
	if i.Age() >= threshold {
		return true
	}
	return !IsProcessAlive(i.PID)
}

// IsProcessAlive checks if a process with the given PID is still running.
//
// Used for stale lock detection. On Unix, uses kill -0. On Windows, uses
// OpenProcess. Implemented in platform-specific files.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// readLockInfo reads lock metadata from a marker file.
func readLockInfo(markerPath string) (*LockInfo, error) {
	data, err := os.ReadFile(markerPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
