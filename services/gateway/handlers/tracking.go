// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinelog/cinelog/services/gateway/datatypes"
	"github.com/cinelog/cinelog/services/store"
	"github.com/cinelog/cinelog/services/tracking"
)

// IngestEvent folds one behavioral event into the store. Events the
// mutator ignores still answer 200 with the outcome named; only transport
// and storage failures are errors. Clients fire-and-forget these calls and
// must never see tracking break a page.
func IngestEvent(s *store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.EventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ev := tracking.Event{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Type:      tracking.EventType(req.EventType),
			Payload:   req.Payload,
		}

		outcome, err := s.ApplyEvent(c.Request.Context(), ev)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
				return
			}
			slog.Error("event ingestion failed",
				"user_id", req.UserID,
				"event_type", req.EventType,
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
			return
		}

		if outcome.Applied() && hub != nil {
			hub.Broadcast(datatypes.LiveEvent{
				UserID:    req.UserID,
				SessionID: req.SessionID,
				EventType: req.EventType,
				Outcome:   outcome.String(),
			})
		}

		c.JSON(http.StatusOK, datatypes.EventResponse{
			Status:  "success",
			Outcome: outcome.String(),
		})
	}
}
