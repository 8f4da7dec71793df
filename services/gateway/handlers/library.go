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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cinelog/cinelog/pkg/validation"
	"github.com/cinelog/cinelog/services/store"
	"github.com/cinelog/cinelog/services/tracking"
)

// lookupUser validates the path id before it can reach a file path and
// resolves it to a stored user. An id that cannot be a stored user answers
// the same as an unknown one.
func lookupUser(c *gin.Context, s *store.Store, userID string) bool {
	if err := validation.ValidateUserID(userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return false
	}
	if _, err := s.FindUserByID(c.Request.Context(), userID); err != nil {
		respondLookupError(c, err)
		return false
	}
	return true
}

// GetLibrary returns the user's side document: lists, journal, favorites.
func GetLibrary(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if !lookupUser(c, s, userID) {
			return
		}

		doc, err := s.LoadUserDoc(c.Request.Context(), userID)
		if err != nil {
			slog.Error("loading user document failed", "user_id", userID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

type favoriteRequest struct {
	MovieID string `json:"movieId" binding:"required,movieid"`
}

// AddFavorite appends a movie to the user's favorites, once.
func AddFavorite(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		var req favoriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if !lookupUser(c, s, userID) {
			return
		}

		err := s.UpdateUserDoc(c.Request.Context(), userID, "add_favorite", func(doc *tracking.UserDoc) error {
			for _, id := range doc.Favorites {
				if id == req.MovieID {
					return nil
				}
			}
			doc.Favorites = append(doc.Favorites, req.MovieID)
			return nil
		})
		if err != nil {
			slog.Error("adding favorite failed", "user_id", userID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

type journalRequest struct {
	MovieID string `json:"movieId" binding:"required,movieid"`
	Title   string `json:"title" binding:"required"`
	Body    string `json:"body"`
	Rating  int    `json:"rating" binding:"omitempty,min=1,max=10"`
}

// AddJournalEntry appends a diary entry about a movie.
func AddJournalEntry(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		var req journalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if !lookupUser(c, s, userID) {
			return
		}

		entry := tracking.JournalEntry{
			ID:        uuid.NewString(),
			MovieID:   req.MovieID,
			Title:     req.Title,
			Body:      req.Body,
			Rating:    req.Rating,
			CreatedAt: time.Now().UTC(),
		}
		err := s.UpdateUserDoc(c.Request.Context(), userID, "add_journal_entry", func(doc *tracking.UserDoc) error {
			doc.Journal = append(doc.Journal, entry)
			return nil
		})
		if err != nil {
			slog.Error("adding journal entry failed", "user_id", userID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown user"})
		return
	}
	slog.Error("user lookup failed", "error", err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
}
