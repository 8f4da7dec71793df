// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracking

import "time"

// UserDoc is the per-user side document (lists, journal, favorites). It is
// persisted under the same durable-write discipline as the canonical user
// collection, just with an object top level instead of an array.
type UserDoc struct {
	Lists     []CustomList   `json:"lists"`
	Journal   []JournalEntry `json:"journal"`
	Favorites []string       `json:"favorites"`
}

// CustomList is a user-curated movie list.
type CustomList struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MovieIDs  []string  `json:"movieIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// JournalEntry is one diary entry about a movie. Metadata fields arrive
// from lookup providers and are stored verbatim.
type JournalEntry struct {
	ID        string    `json:"id"`
	MovieID   string    `json:"movieId"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Rating    int       `json:"rating,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserDoc returns an empty document with non-nil collections so the
// encoded form always carries the expected keys.
func NewUserDoc() *UserDoc {
	return &UserDoc{
		Lists:     []CustomList{},
		Journal:   []JournalEntry{},
		Favorites: []string{},
	}
}
