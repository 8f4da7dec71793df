// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// Tests for the library handlers

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinelog/cinelog/services/store"
	"github.com/cinelog/cinelog/services/tracking"
)

func newLibraryRouter(s *store.Store) *gin.Engine {
	router := gin.New()
	router.GET("/users/:userId/library", GetLibrary(s))
	router.POST("/users/:userId/favorites", AddFavorite(s))
	router.POST("/users/:userId/journal", AddJournalEntry(s))
	return router
}

func TestLibrary(t *testing.T) {
	s := newTestStore(t)
	u, err := s.CreateUser(t.Context(), "ada1815", "$2a$10$hash", nil)
	require.NoError(t, err)
	router := newLibraryRouter(s)

	t.Run("empty library for new user", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/users/"+u.ID+"/library", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var doc tracking.UserDoc
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Empty(t, doc.Favorites)
		assert.Empty(t, doc.Journal)
	})

	t.Run("favorites are added once", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			w := postJSON(t, router, "/users/"+u.ID+"/favorites", gin.H{"movieId": "tt0113277"})
			require.Equal(t, http.StatusOK, w.Code)
		}

		doc, err := s.LoadUserDoc(t.Context(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"tt0113277"}, doc.Favorites)
	})

	t.Run("journal entry round trips", func(t *testing.T) {
		w := postJSON(t, router, "/users/"+u.ID+"/journal", gin.H{
			"movieId": "tt0113277",
			"title":   "Heat",
			"body":    "The diner scene still holds up.",
			"rating":  9,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var entry tracking.JournalEntry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.NotEmpty(t, entry.ID)

		doc, err := s.LoadUserDoc(t.Context(), u.ID)
		require.NoError(t, err)
		require.Len(t, doc.Journal, 1)
		assert.Equal(t, "Heat", doc.Journal[0].Title)
		assert.Equal(t, 9, doc.Journal[0].Rating)
	})

	t.Run("unknown user answers 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/users/ghost/library", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w2 := postJSON(t, router, "/users/ghost/favorites", gin.H{"movieId": "tt1"})
		assert.Equal(t, http.StatusNotFound, w2.Code)
	})

	t.Run("rejects invalid journal rating", func(t *testing.T) {
		w := postJSON(t, router, "/users/"+u.ID+"/journal", gin.H{
			"movieId": "tt0113277",
			"title":   "Heat",
			"rating":  11,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
