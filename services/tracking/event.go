// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

// EventType selects the mutation applied by the mutator state machine.
type EventType string

const (
	EventPageView    EventType = "pageview"
	EventInteraction EventType = "interaction"
	EventPageExit    EventType = "pageExit"
)

// Event is one semantic tracking event as submitted by the ingestion
// endpoint: which user, which session, what happened.
type Event struct {
	UserID    string       `json:"userId"`
	SessionID string       `json:"sessionId"`
	Type      EventType    `json:"eventType"`
	Payload   EventPayload `json:"payload"`
}

// EventPayload is the union of fields the three event types use. Required
// fields are checked per type by the mutator; events missing them are
// dropped with an explicit outcome rather than an error.
type EventPayload struct {
	ID string `json:"id,omitempty"`

	// pageview
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// interaction
	Type        string         `json:"type,omitempty"`
	Element     string         `json:"element,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Coordinates *Coordinates   `json:"coordinates,omitempty"`
	Value       string         `json:"value,omitempty"`

	// pageExit
	Duration    int    `json:"duration,omitempty"`
	ScrollDepth int    `json:"scrollDepth,omitempty"`
	Clicks      int    `json:"clicks,omitempty"`
	ExitMethod  string `json:"exitMethod,omitempty"`

	// session synthesis, used when the session id is unknown
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// Outcome reports what a mutator application did. Ignored outcomes are a
// deliberate contract: tracking must never break the caller, but the reason
// an event went nowhere stays observable and testable.
type Outcome int

const (
	// OutcomeApplied means the collection was mutated.
	OutcomeApplied Outcome = iota

	// OutcomeIgnoredUnknownUser means the referenced user does not exist.
	OutcomeIgnoredUnknownUser

	// OutcomeIgnoredInvalidPayload means a required payload field was
	// missing and the event was dropped.
	OutcomeIgnoredInvalidPayload

	// OutcomeIgnoredUnknownPageView means a pageExit referenced a page
	// view id not present in the session.
	OutcomeIgnoredUnknownPageView

	// OutcomeIgnoredUnknownEventType means the event type is not part of
	// the state machine.
	OutcomeIgnoredUnknownEventType
)

// Applied reports whether the event mutated the collection.
func (o Outcome) Applied() bool {
	return o == OutcomeApplied
}

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnoredUnknownUser:
		return "ignored_unknown_user"
	case OutcomeIgnoredInvalidPayload:
		return "ignored_invalid_payload"
	case OutcomeIgnoredUnknownPageView:
		return "ignored_unknown_pageview"
	case OutcomeIgnoredUnknownEventType:
		return "ignored_unknown_event_type"
	default:
		return "unknown"
	}
}
