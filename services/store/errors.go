// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

var (
	// ErrUnavailable indicates the retry budget was exhausted by lock
	// contention or write failures. Surfaces as a service-unavailable
	// condition to callers.
	ErrUnavailable = errors.New("store: unavailable after retries")

	// ErrCorruption indicates a document failed to decode and could not
	// be repaired from backup or by prefix truncation.
	ErrCorruption = errors.New("store: document corrupted")

	// ErrValidationFailed indicates the post-write readback of the temp
	// sibling failed to parse. The canonical file was restored from
	// backup before this was raised.
	ErrValidationFailed = errors.New("store: post-write validation failed")

	// ErrNotFound indicates a referenced user is absent. A hard error for
	// authentication lookups; tracking ingestion never sees it because
	// the mutator reports an ignored outcome instead.
	ErrNotFound = errors.New("store: record not found")

	// ErrClosed indicates the store handle has been shut down.
	ErrClosed = errors.New("store: closed")
)

// errNoChange signals from a mutate callback that the collection is
// unchanged and the write should be skipped. Internal control flow only;
// never escapes the store.
var errNoChange = errors.New("store: no change")
