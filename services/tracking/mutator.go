// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

import (
	"log/slog"
	"time"
)

// Mutator applies one semantic event to an in-memory collection and
// recomputes the derived aggregates.
//
// # Description
//
// A small state machine over the pageview/interaction/pageExit event types.
// Absent users, malformed payloads, and unknown page views never raise:
// they produce an explicit ignored Outcome, logged but swallowed, because
// analytics reliability is deliberately lower priority than the user-facing
// request flow.
//
// # Thread Safety
//
// Apply mutates the collection it is given. Callers serialize access; in
// this system the store's read-mutate-write cycle runs Apply while holding
// the write lock.
type Mutator struct {
	logger *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewMutator creates a Mutator. A nil logger falls back to slog.Default().
func NewMutator(logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		logger: logger.With(slog.String("component", "mutator")),
		now:    time.Now,
	}
}

// Apply applies one event to the collection in place.
//
// # Inputs
//
//   - users: the full decoded collection. Mutated in place.
//   - ev: the event to apply.
//
// # Outputs
//
//   - Outcome: OutcomeApplied, or the specific ignored outcome.
func (m *Mutator) Apply(users []UserRecord, ev Event) Outcome {
	user := findUser(users, ev.UserID)
	if user == nil {
		m.logger.Info("ignoring event for unknown user",
			slog.String("user_id", ev.UserID),
			slog.String("event_type", string(ev.Type)))
		return OutcomeIgnoredUnknownUser
	}

	now := m.now()
	td := ensureTracking(user, now)
	sess := m.ensureSession(td, ev, now)

	var outcome Outcome
	switch ev.Type {
	case EventPageView:
		outcome = m.applyPageView(td, sess, ev.Payload)
	case EventInteraction:
		outcome = m.applyInteraction(td, sess, ev.Payload)
	case EventPageExit:
		outcome = m.applyPageExit(sess, ev.Payload)
	default:
		m.logger.Info("ignoring unknown event type",
			slog.String("event_type", string(ev.Type)))
		return OutcomeIgnoredUnknownEventType
	}

	// The session synthesis above already mutated the record, so derived
	// timestamps are refreshed even when the event itself was dropped.
	touch(td, now)
	return outcome
}

// applyPageView appends a PageView with zeroed numeric fields; a later
// pageExit keyed by the same id patches them.
func (m *Mutator) applyPageView(td *TrackingData, sess *SessionRecord, p EventPayload) Outcome {
	if p.ID == "" || p.URL == "" || p.Title == "" || p.Timestamp == 0 {
		m.logger.Debug("dropping pageview with missing required fields",
			slog.String("id", p.ID),
			slog.String("url", p.URL))
		return OutcomeIgnoredInvalidPayload
	}

	referrer := p.Referrer
	if referrer == "" {
		referrer = "direct"
	}

	sess.PageViews = append(sess.PageViews, PageView{
		ID:        p.ID,
		URL:       p.URL,
		Title:     p.Title,
		Timestamp: p.Timestamp,
		Referrer:  referrer,
	})

	td.Behavior.TotalPageViews++
	td.Behavior.MostVisitedPages = dedupAppend(td.Behavior.MostVisitedPages, p.URL)
	return OutcomeApplied
}

// applyInteraction appends an Interaction and performs type-specific counter
// aggregation.
func (m *Mutator) applyInteraction(td *TrackingData, sess *SessionRecord, p EventPayload) Outcome {
	if p.ID == "" || p.Type == "" || p.Element == "" || p.Timestamp == 0 {
		m.logger.Debug("dropping interaction with missing required fields",
			slog.String("id", p.ID),
			slog.String("type", p.Type))
		return OutcomeIgnoredInvalidPayload
	}

	kind := InteractionType(p.Type)
	sess.Interactions = append(sess.Interactions, Interaction{
		ID:          p.ID,
		Type:        kind,
		Element:     p.Element,
		Timestamp:   p.Timestamp,
		Data:        p.Data,
		Coordinates: p.Coordinates,
		Value:       p.Value,
	})

	agg := &td.Behavior
	agg.TotalInteractions++

	switch kind {
	case InteractionSearch:
		if query := searchQuery(p); query != "" {
			agg.SearchQueries = dedupAppend(agg.SearchQueries, query)
		}
	case InteractionMovieAdd:
		agg.MoviesAdded++
	case InteractionRating:
		agg.MoviesRated++
	case InteractionListCreate:
		agg.CustomListsCreated++
	case InteractionJournalEntry:
		agg.JournalEntries++
	}
	return OutcomeApplied
}

// applyPageExit patches the page view with the matching id. Patching the
// same exit twice is idempotent.
func (m *Mutator) applyPageExit(sess *SessionRecord, p EventPayload) Outcome {
	if p.ID == "" {
		return OutcomeIgnoredInvalidPayload
	}

	for i := range sess.PageViews {
		pv := &sess.PageViews[i]
		if pv.ID != p.ID {
			continue
		}
		pv.Duration = p.Duration
		pv.ScrollDepth = p.ScrollDepth
		pv.Clicks = p.Clicks
		if p.ExitMethod != "" {
			pv.ExitMethod = p.ExitMethod
		} else {
			pv.ExitMethod = "navigation"
		}
		return OutcomeApplied
	}

	m.logger.Debug("ignoring pageExit for unknown page view",
		slog.String("id", p.ID))
	return OutcomeIgnoredUnknownPageView
}

// ensureSession finds the addressed session or synthesizes a new one from
// the payload plus the user's stored device/location snapshot.
func (m *Mutator) ensureSession(td *TrackingData, ev Event, now time.Time) *SessionRecord {
	for i := range td.Sessions {
		if td.Sessions[i].ID == ev.SessionID {
			return &td.Sessions[i]
		}
	}

	sess := NewSession(td, SessionSeed{
		ID:        ev.SessionID,
		IPAddress: ev.Payload.IPAddress,
		UserAgent: ev.Payload.UserAgent,
		Referrer:  ev.Payload.Referrer,
	}, now)

	td.Sessions = append(td.Sessions, sess)
	td.TotalSessions++

	m.logger.Debug("synthesized session for unknown session id",
		slog.String("session_id", sess.ID))
	return &td.Sessions[len(td.Sessions)-1]
}

// findUser returns a pointer into the slice, or nil.
func findUser(users []UserRecord, id string) *UserRecord {
	for i := range users {
		if users[i].ID == id {
			return &users[i]
		}
	}
	return nil
}

// searchQuery extracts the query of a search interaction: the payload value
// when present, else a structured "query" field.
func searchQuery(p EventPayload) string {
	if p.Value != "" {
		return p.Value
	}
	if q, ok := p.Data["query"].(string); ok {
		return q
	}
	return ""
}
