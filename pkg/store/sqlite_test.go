// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tspi-test.db")
	s, err := Connect(dsn, sql.NullTime{})
	require.NoError(t, err)
	return s
}

func sampleMessage(natsMsgID, subject string, publishedTS time.Time) MessageRecord {
	sensorID := uint16(501)
	day := uint16(123)
	timeS := 1.534
	return MessageRecord{
		Subject:     subject,
		Kind:        "telemetry",
		NatsMsgID:   natsMsgID,
		PublishedTS: publishedTS,
		MessageType: "geocentric",
		SensorID:    &sensorID,
		Day:         &day,
		TimeS:       &timeS,
		Payload:     []byte(`{"x":1}`),
		Headers:     []byte(`{}`),
		CBOR:        []byte{0x01},
	}
}

func TestSQLStore_InsertMessage_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, inserted1, err := s.InsertMessage(ctx, sampleMessage("501:123:15340", "tspi.geocentric.501", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted1)

	id2, inserted2, err := s.InsertMessage(ctx, sampleMessage("501:123:15340", "tspi.geocentric.501", time.Now()))
	require.NoError(t, err)
	assert.False(t, inserted2)
	assert.Equal(t, id1, id2)

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLStore_InsertMessage_DropsNonLivestreamChannelTraffic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, inserted, err := s.InsertMessage(ctx, sampleMessage("x:1:1", "tspi.channel.replay.20250928T110000Z", time.Now()))
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLStore_InsertMessage_KeepsLivestreamChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, inserted, err := s.InsertMessage(ctx, sampleMessage("x:1:1", "tspi.channel.livestream", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSQLStore_FetchMessagesBetween_OrdersByPublishedTSThenID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	_, _, err := s.InsertMessage(ctx, sampleMessage("a", "tspi.geocentric.1", base.Add(2*time.Second)))
	require.NoError(t, err)
	_, _, err = s.InsertMessage(ctx, sampleMessage("b", "tspi.geocentric.1", base.Add(1*time.Second)))
	require.NoError(t, err)

	msgs, err := s.FetchMessagesBetween(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].NatsMsgID)
	assert.Equal(t, "a", msgs[1].NatsMsgID)
}

func TestSQLStore_FetchMessagesBetween_RejectsBeforeRetentionHorizon(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tspi-test.db")
	horizon := time.Now().Add(-24 * time.Hour)
	s, err := Connect(dsn, sql.NullTime{Time: horizon, Valid: true})
	require.NoError(t, err)

	_, err = s.FetchMessagesBetween(context.Background(), horizon.Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrRetentionHorizon)
}

func TestSQLStore_UpsertCommand_LatestCommandReturnsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCommand(ctx, CommandRecord{
		CmdID: "c1", Name: "display.units", TS: time.Now().Add(-time.Minute),
		Sender: "op1", Units: "metric", Payload: []byte(`{}`), PublishedTS: time.Now(),
	}))
	require.NoError(t, s.UpsertCommand(ctx, CommandRecord{
		CmdID: "c2", Name: "display.units", TS: time.Now(),
		Sender: "op1", Units: "imperial", Payload: []byte(`{}`), PublishedTS: time.Now(),
	}))

	latest, err := s.LatestCommand(ctx, "display.units")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "imperial", latest.Units)
}

func TestSQLStore_ApplyTagEvent_CreateThenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.ApplyTagEvent(ctx, TagRecord{
		ID: "tag-1", TS: now, Creator: "op1", Label: "engine start",
		Status: "active", UpdatedTS: now,
	}))

	tags, err := s.ListTags(ctx, false)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	require.NoError(t, s.ApplyTagEvent(ctx, TagRecord{
		ID: "tag-1", TS: now, Creator: "op1", Label: "engine start",
		Status: "deleted", UpdatedTS: now.Add(time.Second),
	}))

	tags, err = s.ListTags(ctx, false)
	require.NoError(t, err)
	assert.Len(t, tags, 0)

	allTags, err := s.ListTags(ctx, true)
	require.NoError(t, err)
	require.Len(t, allTags, 1)
	assert.Equal(t, "deleted", allTags[0].Status)
}

func TestSQLStore_FetchMessagesForTag_CentersWindowOnTagTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	center := time.Now()
	require.NoError(t, s.ApplyTagEvent(ctx, TagRecord{
		ID: "tag-1", TS: center, Label: "marker", Status: "active", UpdatedTS: center,
	}))

	_, _, err := s.InsertMessage(ctx, sampleMessage("in-window", "tspi.geocentric.1", center))
	require.NoError(t, err)
	_, _, err = s.InsertMessage(ctx, sampleMessage("out-of-window", "tspi.geocentric.1", center.Add(time.Hour)))
	require.NoError(t, err)

	msgs, err := s.FetchMessagesForTag(ctx, "tag-1", 60)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "in-window", msgs[0].NatsMsgID)
}
