// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identifiers that end up
// in file paths or stored documents. User and session ids name files under
// the data directory; validating them here prevents path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// userIDPattern matches the uuid form every stored user id carries.
var userIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// usernamePattern matches signup usernames: 3-32 alphanumerics.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,32}$`)

// movieIDPattern matches IMDb-style movie ids (tt0133093) and bare numeric
// ids from other lookup providers.
var movieIDPattern = regexp.MustCompile(`^(tt)?[0-9]{1,12}$`)

// ValidateUserID validates a user id before it is used to build a file path.
//
// Example:
//
//	if err := validation.ValidateUserID(id); err != nil {
//	    return nil, fmt.Errorf("invalid user id: %w", err)
//	}
//	// Safe to join into the userdocs path
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if !userIDPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid user id format: %q", id)
	}
	return nil
}

// ValidateUsername validates a signup username.
func ValidateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("invalid username %q (must be 3-32 alphanumeric chars)", name)
	}
	return nil
}

// ValidateMovieID validates a movie id before it is stored in a list or
// journal entry.
func ValidateMovieID(id string) error {
	if id == "" {
		return fmt.Errorf("movie id cannot be empty")
	}
	if !movieIDPattern.MatchString(id) {
		return fmt.Errorf("invalid movie id format: %q", id)
	}
	return nil
}

// SanitizeUsername normalizes and validates a username. Returns the
// lowercase form if valid.
func SanitizeUsername(name string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if err := ValidateUsername(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
