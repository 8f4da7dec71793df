// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cinelog/cinelog/services/tracking"
)

// Codec validates and normalizes one persisted document kind. The durable
// writer uses Validate for the post-write readback; the repairer uses
// Normalize to re-serialize a recovered prefix and Terminator to find the
// truncation point.
type Codec interface {
	// Validate rejects anything that does not decode to a well-formed
	// document of this kind.
	Validate(data []byte) error

	// Normalize decodes then re-encodes, yielding the canonical byte form.
	Normalize(data []byte) ([]byte, error)

	// Terminator is the top-level closing byte (']' or '}').
	Terminator() byte

	// Empty is the serialized zero document.
	Empty() []byte
}

// -----------------------------------------------------------------------------
// User collection (top-level array)
// -----------------------------------------------------------------------------

// EncodeUsers serializes the whole collection. A nil slice encodes as [] so
// the canonical file is always a syntactically valid array.
func EncodeUsers(users []tracking.UserRecord) ([]byte, error) {
	if users == nil {
		users = []tracking.UserRecord{}
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding user collection: %w", err)
	}
	return data, nil
}

// DecodeUsers deserializes the collection, rejecting anything that is not a
// well-formed top-level array.
func DecodeUsers(data []byte) ([]tracking.UserRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorruption)
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: top level is not an array", ErrCorruption)
	}

	var users []tracking.UserRecord
	if err := json.Unmarshal(trimmed, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return users, nil
}

// UsersCodec is the Codec for the canonical user collection.
type UsersCodec struct{}

func (UsersCodec) Validate(data []byte) error {
	_, err := DecodeUsers(data)
	return err
}

func (UsersCodec) Normalize(data []byte) ([]byte, error) {
	users, err := DecodeUsers(data)
	if err != nil {
		return nil, err
	}
	return EncodeUsers(users)
}

func (UsersCodec) Terminator() byte { return ']' }

func (UsersCodec) Empty() []byte { return []byte("[]") }

// -----------------------------------------------------------------------------
// Per-user document (top-level object)
// -----------------------------------------------------------------------------

// EncodeUserDoc serializes a per-user lists/journal document.
func EncodeUserDoc(doc *tracking.UserDoc) ([]byte, error) {
	if doc == nil {
		doc = tracking.NewUserDoc()
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding user document: %w", err)
	}
	return data, nil
}

// DecodeUserDoc deserializes a per-user document, rejecting anything that is
// not a well-formed top-level object.
func DecodeUserDoc(data []byte) (*tracking.UserDoc, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorruption)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: top level is not an object", ErrCorruption)
	}

	var doc tracking.UserDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return &doc, nil
}

// UserDocCodec is the Codec for per-user documents.
type UserDocCodec struct{}

func (UserDocCodec) Validate(data []byte) error {
	_, err := DecodeUserDoc(data)
	return err
}

func (UserDocCodec) Normalize(data []byte) ([]byte, error) {
	doc, err := DecodeUserDoc(data)
	if err != nil {
		return nil, err
	}
	return EncodeUserDoc(doc)
}

func (UserDocCodec) Terminator() byte { return '}' }

func (UserDocCodec) Empty() []byte { return []byte("{}") }
