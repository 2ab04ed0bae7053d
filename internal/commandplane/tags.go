// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package commandplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// TagSubject is the subject all tag lifecycle events are broadcast on.
const TagSubject = "tags.broadcast"

// TagCreatorHeader identifies the session/operator that emitted a tag event.
const TagCreatorHeader = "X-Tag-Creator"

const (
	tagStatusActive  = "active"
	tagStatusDeleted = "deleted"
)

type tagEnvelope struct {
	ID        string         `cbor:"id"`
	TS        string         `cbor:"ts"`
	Label     string         `cbor:"label"`
	Status    string         `cbor:"status"`
	UpdatedTS string         `cbor:"updated_ts"`
	Creator   string         `cbor:"creator,omitempty"`
	Notes     string         `cbor:"notes,omitempty"`
	Extra     map[string]any `cbor:"extra,omitempty"`
}

// TagSender publishes tag create/update/delete events.
type TagSender struct {
	Broker broker.Broker
}

// NewTagSender wraps b for tag broadcasts.
func NewTagSender(b broker.Broker) *TagSender {
	return &TagSender{Broker: b}
}

func (s *TagSender) publish(ctx context.Context, env tagEnvelope, creator string) error {
	body, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("commandplane: encode tag %q failed: %w", env.ID, err)
	}

	headers := map[string]string{broker.MsgIDHeader: fmt.Sprintf("%s:%s", env.ID, env.UpdatedTS)}
	if creator != "" {
		headers[TagCreatorHeader] = creator
	}

	if _, err := s.Broker.Publish(ctx, TagSubject, body, headers, time.Now()); err != nil {
		return &PublishFailed{Err: err}
	}
	return nil
}

// Create broadcasts a new tag. label must be non-empty after trim.
func (s *TagSender) Create(ctx context.Context, ts time.Time, label, creator string, notes string, extra map[string]any) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "", &ValidationError{Reason: "tag label must not be empty"}
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	env := tagEnvelope{
		ID:        id,
		TS:        ts.UTC().Format(time.RFC3339),
		Label:     label,
		Status:    tagStatusActive,
		UpdatedTS: now,
		Creator:   creator,
		Notes:     notes,
		Extra:     extra,
	}
	return id, s.publish(ctx, env, creator)
}

// Update broadcasts a label/notes change for an existing tag. The original
// ts is preserved; only updated_ts advances.
func (s *TagSender) Update(ctx context.Context, id string, ts time.Time, label, creator, notes string, extra map[string]any) error {
	if strings.TrimSpace(label) == "" {
		return &ValidationError{Reason: "tag label must not be empty"}
	}
	env := tagEnvelope{
		ID:        id,
		TS:        ts.UTC().Format(time.RFC3339),
		Label:     label,
		Status:    tagStatusActive,
		UpdatedTS: time.Now().UTC().Format(time.RFC3339),
		Creator:   creator,
		Notes:     notes,
		Extra:     extra,
	}
	return s.publish(ctx, env, creator)
}

// Delete broadcasts a tombstone for id, preserving label and ts for audit
// purposes.
func (s *TagSender) Delete(ctx context.Context, id string, ts time.Time, label, creator string) error {
	env := tagEnvelope{
		ID:        id,
		TS:        ts.UTC().Format(time.RFC3339),
		Label:     label,
		Status:    tagStatusDeleted,
		UpdatedTS: time.Now().UTC().Format(time.RFC3339),
		Creator:   creator,
	}
	return s.publish(ctx, env, creator)
}
