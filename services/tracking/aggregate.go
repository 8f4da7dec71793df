// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

import (
	"time"
)

// dedupAppend appends v to list only if absent, preserving insertion order.
// Set semantics over an ordered list.
func dedupAppend(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// AverageSessionDuration computes the mean session length in milliseconds
// over sessions with a defined SessionEnd. Open sessions are excluded, not
// zero-filled. Returns 0 when no session has ended.
func AverageSessionDuration(sessions []SessionRecord) float64 {
	var total float64
	var count int
	for i := range sessions {
		s := &sessions[i]
		if s.SessionEnd == nil {
			continue
		}
		total += float64(s.SessionEnd.Sub(s.SessionStart).Milliseconds())
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// touch refreshes the derived timestamps and the session-duration average
// after any mutation.
func touch(td *TrackingData, now time.Time) {
	td.LastUpdated = now
	td.Behavior.LastActivity = now
	td.Behavior.AverageSessionDuration = AverageSessionDuration(td.Sessions)
}
