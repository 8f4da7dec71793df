// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

import (
	"testing"
	"time"
)

func TestAverageSessionDuration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ended := func(d time.Duration) SessionRecord {
		end := base.Add(d)
		return SessionRecord{SessionStart: base, SessionEnd: &end}
	}

	t.Run("open sessions are excluded, not zero-filled", func(t *testing.T) {
		sessions := []SessionRecord{
			ended(10 * time.Second),
			{SessionStart: base}, // still open
			ended(20 * time.Second),
		}
		got := AverageSessionDuration(sessions)
		if got != 15000 {
			t.Errorf("average = %v ms, want 15000", got)
		}
	})

	t.Run("no ended sessions yields zero", func(t *testing.T) {
		sessions := []SessionRecord{{SessionStart: base}}
		if got := AverageSessionDuration(sessions); got != 0 {
			t.Errorf("average = %v, want 0", got)
		}
	})

	t.Run("empty list yields zero", func(t *testing.T) {
		if got := AverageSessionDuration(nil); got != 0 {
			t.Errorf("average = %v, want 0", got)
		}
	})
}

func TestDedupAppend(t *testing.T) {
	list := []string{}
	for _, v := range []string{"a", "b", "a", "c", "b", "a"} {
		list = dedupAppend(list, v)
	}
	if len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Errorf("dedupAppend order broken: %v", list)
	}
}

func TestStartSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first login initializes tracking", func(t *testing.T) {
		user := UserRecord{ID: "u-1", Username: "alice"}
		sess := StartSession(&user, SessionSeed{
			IPAddress:  "203.0.113.9",
			DeviceInfo: &DeviceInfo{Browser: "Chrome"},
		}, now)

		if user.Tracking == nil {
			t.Fatal("tracking not initialized")
		}
		if user.Tracking.TotalSessions != 1 {
			t.Errorf("totalSessions = %d, want 1", user.Tracking.TotalSessions)
		}
		if !user.Tracking.FirstVisit.Equal(now) {
			t.Errorf("firstVisit = %v, want %v", user.Tracking.FirstVisit, now)
		}
		if user.Tracking.DeviceInfo.Browser != "Chrome" {
			t.Errorf("device snapshot not stored: %+v", user.Tracking.DeviceInfo)
		}
		if sess.ID == "" {
			t.Error("session id not generated")
		}
		if sess.DeviceInfo.Browser != "Chrome" {
			t.Errorf("session snapshot = %+v", sess.DeviceInfo)
		}
	})

	t.Run("second login appends and counts", func(t *testing.T) {
		user := UserRecord{ID: "u-1", Username: "alice"}
		StartSession(&user, SessionSeed{}, now)
		StartSession(&user, SessionSeed{}, now.Add(time.Hour))

		if got := len(user.Tracking.Sessions); got != 2 {
			t.Errorf("sessions = %d, want 2", got)
		}
		if user.Tracking.TotalSessions != 2 {
			t.Errorf("totalSessions = %d, want 2", user.Tracking.TotalSessions)
		}
		if !user.Tracking.FirstVisit.Equal(now) {
			t.Error("firstVisit must not move on later logins")
		}
	})
}
