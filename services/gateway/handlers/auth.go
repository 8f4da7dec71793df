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

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/cinelog/cinelog/services/gateway/datatypes"
	"github.com/cinelog/cinelog/services/store"
	"github.com/cinelog/cinelog/services/tracking"
)

// Signup creates a new account. The raw password lives in a locked memguard
// buffer for the short window between binding and hashing; only the bcrypt
// hash ever reaches the store.
func Signup(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		secret := memguard.NewBufferFromBytes([]byte(req.Password))
		defer secret.Destroy()
		req.Password = ""

		hash, err := bcrypt.GenerateFromPassword(secret.Bytes(), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("bcrypt hashing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		user, err := s.CreateUser(c.Request.Context(), req.Username, string(hash), req.TrackingData)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrUsernameTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			case errors.Is(err, store.ErrUnavailable):
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			default:
				slog.Error("signup failed", "username", req.Username, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			}
			return
		}

		c.JSON(http.StatusCreated, datatypes.AuthResponse{
			UserID:    user.ID,
			Username:  user.Username,
			CreatedAt: user.CreatedAt,
		})
	}
}

// Login verifies credentials and starts a tracking session. Failed lookups
// and failed password checks answer identically so usernames cannot be
// probed.
func Login(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		secret := memguard.NewBufferFromBytes([]byte(req.Password))
		defer secret.Destroy()
		req.Password = ""

		user, err := s.FindUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Burn a comparison anyway to keep timing flat.
				_ = bcrypt.CompareHashAndPassword(dummyHash, secret.Bytes())
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			slog.Error("login lookup failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), secret.Bytes()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		seed := tracking.SessionSeed{
			IPAddress:          c.ClientIP(),
			UserAgent:          c.Request.UserAgent(),
			Referrer:           req.Referrer,
			BrowserFingerprint: req.BrowserFingerprint,
		}
		if len(req.DeviceInfo) > 0 {
			seed.DeviceInfo = deviceInfoFromMap(req.DeviceInfo)
		}

		sessionID, loginAt, err := s.RecordLogin(c.Request.Context(), user.ID, seed)
		if err != nil {
			slog.Error("recording login failed", "user_id", user.ID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store busy, try again"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AuthResponse{
			UserID:    user.ID,
			Username:  user.Username,
			SessionID: sessionID,
			CreatedAt: user.CreatedAt,
			LastLogin: &loginAt,
		})
	}
}

// dummyHash keeps the unknown-username path doing the same bcrypt work as
// the wrong-password path.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("cinelog-timing-pad"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

func deviceInfoFromMap(m map[string]any) *tracking.DeviceInfo {
	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}
	return &tracking.DeviceInfo{
		Browser:          str("browser"),
		BrowserVersion:   str("browserVersion"),
		OS:               str("os"),
		Platform:         str("platform"),
		ScreenResolution: str("screenResolution"),
		Timezone:         str("timezone"),
		Language:         str("language"),
	}
}
