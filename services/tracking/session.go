// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

import (
	"time"

	"github.com/google/uuid"
)

// SessionSeed carries the request-scoped context a new session starts from.
type SessionSeed struct {
	// ID is optional; a fresh uuid is generated when empty.
	ID string

	IPAddress string
	UserAgent string
	Referrer  string

	// Optional client snapshots; zero values fall back to the user's
	// stored snapshot.
	DeviceInfo         *DeviceInfo
	LocationData       *LocationData
	NetworkInfo        *NetworkInfo
	BrowserFingerprint string
}

// NewSession builds a SessionRecord from a seed plus the user's stored
// device/location snapshot. It does not append or count; callers own that.
func NewSession(td *TrackingData, seed SessionSeed, now time.Time) SessionRecord {
	id := seed.ID
	if id == "" {
		id = uuid.NewString()
	}

	device := td.DeviceInfo
	if seed.DeviceInfo != nil {
		device = *seed.DeviceInfo
	}
	location := td.LocationData
	if seed.LocationData != nil {
		location = *seed.LocationData
	}

	return SessionRecord{
		ID:           id,
		SessionStart: now,
		IPAddress:    seed.IPAddress,
		UserAgent:    seed.UserAgent,
		Referrer:     seed.Referrer,
		DeviceInfo:   device,
		LocationData: location,
		PageViews:    []PageView{},
		Interactions: []Interaction{},
	}
}

// StartSession initializes tracking on first use, refreshes the stored
// device/location snapshots from the seed, appends a new session, and bumps
// the session counter. Used by the login flow.
func StartSession(user *UserRecord, seed SessionSeed, now time.Time) *SessionRecord {
	td := ensureTracking(user, now)

	if seed.DeviceInfo != nil {
		td.DeviceInfo = *seed.DeviceInfo
	}
	if seed.LocationData != nil {
		td.LocationData = *seed.LocationData
	}
	if seed.NetworkInfo != nil {
		td.NetworkInfo = *seed.NetworkInfo
	}
	if seed.BrowserFingerprint != "" {
		td.BrowserFingerprint = seed.BrowserFingerprint
	}

	sess := NewSession(td, seed, now)
	td.Sessions = append(td.Sessions, sess)
	td.TotalSessions++
	touch(td, now)

	return &td.Sessions[len(td.Sessions)-1]
}

// ensureTracking lazily initializes the per-user tracking document.
func ensureTracking(user *UserRecord, now time.Time) *TrackingData {
	if user.Tracking == nil {
		user.Tracking = &TrackingData{
			FirstVisit:  now,
			LastUpdated: now,
			Sessions:    []SessionRecord{},
			Behavior: BehaviorAggregate{
				MostVisitedPages: []string{},
				SearchQueries:    []string{},
			},
		}
	}
	return user.Tracking
}
