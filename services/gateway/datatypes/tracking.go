// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "github.com/cinelog/cinelog/services/tracking"

// EventRequest is the body of POST /v1/tracking/events.
type EventRequest struct {
	UserID    string                `json:"userId" binding:"required,uuid4"`
	SessionID string                `json:"sessionId" binding:"required"`
	EventType string                `json:"eventType" binding:"required"`
	Payload   tracking.EventPayload `json:"payload"`
}

// EventResponse reports what ingestion did with the event. Ignored events
// still answer success; the outcome names why nothing changed.
type EventResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

// LiveEvent is broadcast on the /v1/tracking/live websocket for every
// applied event.
type LiveEvent struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	EventType string `json:"eventType"`
	Outcome   string `json:"outcome"`
}
