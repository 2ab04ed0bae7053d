// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the durable index backing the archiver (C6) and
// store replayer (C7): idempotent message/command/tag persistence and the
// read paths used for time-window and tag-centred replay.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrRetentionHorizon is returned when a historical read is requested for
// an instant that predates what the store retains.
var ErrRetentionHorizon = errors.New("store: requested instant is before the retention horizon")

// MessageRecord is the durable projection of one archived broker message.
type MessageRecord struct {
	ID           int64
	Subject      string
	Kind         string // "telemetry", "command", "tag"
	NatsMsgID    string
	PublishedTS  time.Time
	RecvEpochMS  *int64
	RecvISO      string
	MessageType  string // "geocentric", "spherical", or empty for non-telemetry
	SensorID     *uint16
	Day          *uint16
	TimeS        *float64
	Payload      []byte // JSON-encoded envelope/command/tag payload
	Headers      []byte // JSON-encoded header map
	TSPIExtracts []byte // JSON-encoded status flags, optional
	CBOR         []byte // original wire body
}

// CommandRecord is the durable projection of one display command.
type CommandRecord struct {
	CmdID       string
	Name        string
	TS          time.Time
	Sender      string
	Units       string
	Payload     []byte
	PublishedTS time.Time
	MessageID   int64
}

// TagRecord is the durable projection of a tag's latest known state.
type TagRecord struct {
	ID        string
	TS        time.Time
	Creator   string
	Label     string
	Category  string
	Notes     string
	Extra     []byte
	Status    string
	UpdatedTS time.Time
	MessageID int64
}

// Store is the persistence contract the archiver and replayer depend on.
// Every write operation is idempotent: repeating it with the same natural
// key must not create a duplicate row or regress state.
type Store interface {
	// InsertMessage persists rec if its NatsMsgID has not been seen before.
	// inserted is false (with no error) when the row already existed or
	// when the subject is classified as non-archivable channel traffic.
	InsertMessage(ctx context.Context, rec MessageRecord) (id int64, inserted bool, err error)

	// UpsertCommand records a command's latest state, keyed by CmdID.
	UpsertCommand(ctx context.Context, cmd CommandRecord) error

	// ApplyTagEvent creates or updates a tag's projection. A tag carrying
	// status "deleted" remains in the table (for audit) but is excluded
	// from ListTags by default.
	ApplyTagEvent(ctx context.Context, tag TagRecord) error

	// FetchMessagesBetween returns archived messages of every kind in [start, end],
	// ordered by (published_ts ASC, id ASC).
	FetchMessagesBetween(ctx context.Context, start, end time.Time) ([]MessageRecord, error)

	// FetchMessagesForTag returns messages in a window of windowSeconds
	// centred on the tag's timestamp.
	FetchMessagesForTag(ctx context.Context, tagID string, windowSeconds float64) ([]MessageRecord, error)

	// LatestCommand returns the command with the given name whose own TS is
	// latest, or nil if none has been seen.
	LatestCommand(ctx context.Context, name string) (*CommandRecord, error)

	// GetTag returns a tag by id, or nil if unknown.
	GetTag(ctx context.Context, id string) (*TagRecord, error)

	// ListTags returns all tags, excluding status "deleted" unless
	// includeDeleted is true.
	ListTags(ctx context.Context, includeDeleted bool) ([]TagRecord, error)

	// CountMessages returns the total number of distinct archived messages.
	CountMessages(ctx context.Context) (int64, error)
}
