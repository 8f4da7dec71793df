// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/cinelog/cinelog/services/tracking"
)

// SignupRequest is the body of POST /v1/auth/signup. The optional tracking
// snapshot seeds the new account's device/location context; lifecycle
// fields in it are ignored.
type SignupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32,alphanum"`
	Password string `json:"password" binding:"required,min=8,max=128"`

	TrackingData *tracking.TrackingData `json:"trackingData,omitempty"`
}

// LoginRequest is the body of POST /v1/auth/login. The optional client
// context seeds the tracking session started on a successful login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`

	DeviceInfo         map[string]any `json:"deviceInfo,omitempty"`
	BrowserFingerprint string         `json:"browserFingerprint,omitempty"`
	Referrer           string         `json:"referrer,omitempty"`
}

// AuthResponse is returned by both signup and login.
type AuthResponse struct {
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	SessionID string     `json:"sessionId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}
