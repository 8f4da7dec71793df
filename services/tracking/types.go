// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracking holds the persisted user/behavior data model and the
// mutator that applies semantic tracking events to an in-memory collection.
package tracking

import (
	"time"
)

// UserRecord is one element of the canonical persisted collection.
//
// Records are created at signup, mutated on every login and tracking event,
// and never deleted.
type UserRecord struct {
	// ID is opaque, unique, and server-generated.
	ID string `json:"id"`

	// Username is unique and immutable. Uniqueness is enforced by the
	// caller before insert, not by the store.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the account password. The field
	// keeps the historical "password" key in the stored document.
	PasswordHash string `json:"password"`

	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	Preferences Preferences `json:"preferences"`

	// Tracking is nil until the first login or tracking event arrives.
	Tracking *TrackingData `json:"trackingData,omitempty"`
}

// Preferences are user-facing display settings stored verbatim.
type Preferences struct {
	Theme              string `json:"theme,omitempty"`
	Language           string `json:"language,omitempty"`
	EmailNotifications bool   `json:"emailNotifications,omitempty"`
}

// TrackingData aggregates everything observed about one user. One per user.
type TrackingData struct {
	DeviceInfo         DeviceInfo `json:"deviceInfo"`
	BrowserFingerprint string     `json:"browserFingerprint,omitempty"`

	FirstVisit  time.Time `json:"firstVisit"`
	LastUpdated time.Time `json:"lastUpdated"`

	// TotalSessions is an independent counter. It is not reconciled
	// against len(Sessions) after arbitrary edits.
	TotalSessions int `json:"totalSessions"`

	LocationData LocationData `json:"locationData"`
	NetworkInfo  NetworkInfo  `json:"networkInfo"`

	Behavior BehaviorAggregate `json:"behaviorData"`

	// Sessions is append-only and chronological.
	Sessions []SessionRecord `json:"sessions"`
}

// DeviceInfo is a client device snapshot captured at login.
type DeviceInfo struct {
	Browser          string `json:"browser,omitempty"`
	BrowserVersion   string `json:"browserVersion,omitempty"`
	OS               string `json:"os,omitempty"`
	Platform         string `json:"platform,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Language         string `json:"language,omitempty"`
}

// LocationData is a coarse location snapshot supplied by the client or an
// upstream lookup provider; stored verbatim.
type LocationData struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// NetworkInfo describes the connection observed at login.
type NetworkInfo struct {
	IPAddress      string `json:"ipAddress,omitempty"`
	ISP            string `json:"isp,omitempty"`
	ConnectionType string `json:"connectionType,omitempty"`
}

// SessionRecord is one browsing session. PageViews and Interactions are
// ordered, append-only lists.
type SessionRecord struct {
	ID           string     `json:"id"`
	SessionStart time.Time  `json:"sessionStart"`
	SessionEnd   *time.Time `json:"sessionEnd,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	// Device/location snapshot copied from the user at session start.
	DeviceInfo   DeviceInfo   `json:"deviceInfo"`
	LocationData LocationData `json:"locationData"`

	PageViews    []PageView    `json:"pageViews"`
	Interactions []Interaction `json:"interactions"`
}

// PageView records one page visit. Duration, ScrollDepth and Clicks start at
// zero and are patched by a later pageExit event keyed by ID.
type PageView struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"` // client clock, Unix milliseconds

	Duration    int    `json:"duration"`
	ScrollDepth int    `json:"scrollDepth"`
	Clicks      int    `json:"clicks"`
	Referrer    string `json:"referrer"`
	ExitMethod  string `json:"exitMethod,omitempty"`
}

// InteractionType classifies an Interaction for aggregation.
type InteractionType string

const (
	InteractionClick        InteractionType = "click"
	InteractionSearch       InteractionType = "search"
	InteractionMovieAdd     InteractionType = "movie_add"
	InteractionMovieRemove  InteractionType = "movie_remove"
	InteractionRating       InteractionType = "rating"
	InteractionListCreate   InteractionType = "list_create"
	InteractionJournalEntry InteractionType = "journal_entry"
)

// Coordinates is a click position in page space.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Interaction records one user interaction with a page element.
type Interaction struct {
	ID        string          `json:"id"`
	Type      InteractionType `json:"type"`
	Element   string          `json:"element"`
	Timestamp int64           `json:"timestamp"` // client clock, Unix milliseconds

	// Data carries structured payloads from lookup providers verbatim.
	Data        map[string]any `json:"data,omitempty"`
	Coordinates *Coordinates   `json:"coordinates,omitempty"`
	Value       string         `json:"value,omitempty"`
}

// BehaviorAggregate holds derived counters and dedup lists, recomputed after
// every mutation.
type BehaviorAggregate struct {
	TotalPageViews    int `json:"totalPageViews"`
	TotalInteractions int `json:"totalInteractions"`

	// AverageSessionDuration is in milliseconds, computed only over
	// sessions with a defined SessionEnd.
	AverageSessionDuration float64 `json:"averageSessionDuration"`

	MoviesAdded        int `json:"moviesAdded"`
	MoviesRated        int `json:"moviesRated"`
	JournalEntries     int `json:"journalEntries"`
	CustomListsCreated int `json:"customListsCreated"`

	LastActivity time.Time `json:"lastActivity"`

	// Ordered lists with set semantics: a value appears at most once.
	MostVisitedPages []string `json:"mostVisitedPages"`
	SearchQueries    []string `json:"searchQueries"`
}
