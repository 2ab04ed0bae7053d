// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package replayer

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "replayer-test.db")
	s, err := store.Connect(dsn, sql.NullTime{})
	require.NoError(t, err)
	return s
}

func insertTelemetry(t *testing.T, s store.Store, subject string, publishedTS time.Time, recvEpochMS int64) int64 {
	t.Helper()
	ms := recvEpochMS
	id, inserted, err := s.InsertMessage(context.Background(), store.MessageRecord{
		Subject:     subject,
		Kind:        "telemetry",
		NatsMsgID:   subject + ":" + time.Unix(0, recvEpochMS*int64(time.Millisecond)).String(),
		PublishedTS: publishedTS,
		RecvEpochMS: &ms,
		CBOR:        []byte{0x01, 0x02},
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

func TestPlayoutSubject_DerivesFromTail(t *testing.T) {
	assert.Equal(t, "player.room1.playout.geocentric.501", playoutSubject("room1", "tspi.geocentric.501"))
	assert.Equal(t, "player.room1.playout.nodot", playoutSubject("room1", "nodot"))
}

func TestReplayDedupID_DisambiguatesByRecordIDOnlyWhenAsked(t *testing.T) {
	a := replayDedupID("orig-id", "room1", 7, true)
	b := replayDedupID("orig-id", "room1", 7, false)
	assert.Equal(t, "orig-id:replay:room1:7", a)
	assert.NotEqual(t, a, b)
}

func TestDelayBetween_UsesRecvEpochMS(t *testing.T) {
	t0 := int64(0)
	t1 := int64(200)
	prev := store.MessageRecord{RecvEpochMS: &t0}
	cur := store.MessageRecord{RecvEpochMS: &t1}
	assert.Equal(t, 200*time.Millisecond, delayBetween(prev, cur))
}

func TestDelayBetween_ClampsNegativeToZero(t *testing.T) {
	t0 := int64(500)
	t1 := int64(100)
	prev := store.MessageRecord{RecvEpochMS: &t0}
	cur := store.MessageRecord{RecvEpochMS: &t1}
	assert.Equal(t, time.Duration(0), delayBetween(prev, cur))
}

func TestDelayBetween_FallsBackToTimeS(t *testing.T) {
	s0 := 10.0
	s1 := 10.5
	prev := store.MessageRecord{TimeS: &s0}
	cur := store.MessageRecord{TimeS: &s1}
	assert.Equal(t, 500*time.Millisecond, delayBetween(prev, cur))
}

// TestReplayTimeWindow_PacesBySleepSum covers scenario S6: three records
// archived at recv_epoch_ms 0, 200, 400 replay with sleeps [0.2, 0.2]; the
// first record is published at once, with no sleep call.
func TestReplayTimeWindow_PacesBySleepSum(t *testing.T) {
	s := newTestStore(t)
	b := broker.NewMemoryBroker()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertTelemetry(t, s, "tspi.geocentric.501", base, 0)
	insertTelemetry(t, s, "tspi.geocentric.501", base.Add(200*time.Millisecond), 200)
	insertTelemetry(t, s, "tspi.geocentric.501", base.Add(400*time.Millisecond), 400)

	r := New(b, s)
	var sleeps []time.Duration
	r.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	err := r.ReplayTimeWindow(ctx, "room1", base.Add(-time.Second), base.Add(time.Second), true)
	require.NoError(t, err)

	require.Len(t, sleeps, 2)
	assert.Equal(t, 200*time.Millisecond, sleeps[0])
	assert.Equal(t, 200*time.Millisecond, sleeps[1])

	var total time.Duration
	for _, d := range sleeps {
		total += d
	}
	assert.Equal(t, 400*time.Millisecond, total)
}

func TestReplayTimeWindow_NoPaceSkipsSleeping(t *testing.T) {
	s := newTestStore(t)
	b := broker.NewMemoryBroker()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertTelemetry(t, s, "tspi.geocentric.501", base, 0)
	insertTelemetry(t, s, "tspi.geocentric.501", base.Add(200*time.Millisecond), 200)

	r := New(b, s)
	slept := false
	r.Sleep = func(time.Duration) { slept = true }

	err := r.ReplayTimeWindow(ctx, "room1", base.Add(-time.Second), base.Add(time.Second), false)
	require.NoError(t, err)
	assert.False(t, slept)
}

func TestReplayTimeWindow_PublishesWithOriginHeaderAndRewrittenDedupID(t *testing.T) {
	s := newTestStore(t)
	b := broker.NewMemoryBroker()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := insertTelemetry(t, s, "tspi.geocentric.501", base, 0)

	require.NoError(t, b.EnsureStream(ctx, "PLAYOUT", []string{"player.>"}, 1))
	consumer, err := b.CreatePullConsumer(ctx, "PLAYOUT", broker.ConsumerConfig{
		Durable: "test", SubjectFilter: "player.room1.playout.>",
	})
	require.NoError(t, err)

	r := New(b, s)
	r.Sleep = func(time.Duration) {}
	require.NoError(t, r.ReplayTimeWindow(ctx, "room1", base.Add(-time.Second), base.Add(time.Second), true))

	msgs, err := consumer.Pull(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "player.room1.playout.geocentric.501", msgs[0].Subject)
	assert.Equal(t, "datastore", msgs[0].Headers[ReplayOriginHeader])

	rec, err := s.FetchMessagesBetween(ctx, base.Add(-time.Second), base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, rec, 1)
	assert.Equal(t, id, rec[0].ID)

	expected := replayDedupID(rec[0].NatsMsgID, "room1", id, true)
	assert.Equal(t, expected, msgs[0].Headers[broker.MsgIDHeader])
}

func TestReplayTag_CentersWindowOnTagTimestamp(t *testing.T) {
	s := newTestStore(t)
	b := broker.NewMemoryBroker()
	ctx := context.Background()

	tagTS := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.ApplyTagEvent(ctx, store.TagRecord{
		ID: "tag1", TS: tagTS, Label: "engine start", Status: "active", UpdatedTS: tagTS,
	}))

	insertTelemetry(t, s, "tspi.geocentric.501", tagTS.Add(-2*time.Second), 0)
	insertTelemetry(t, s, "tspi.geocentric.501", tagTS, 2000)
	insertTelemetry(t, s, "tspi.geocentric.501", tagTS.Add(10*time.Second), 12000)

	require.NoError(t, b.EnsureStream(ctx, "PLAYOUT2", []string{"player.>"}, 1))
	consumer, err := b.CreatePullConsumer(ctx, "PLAYOUT2", broker.ConsumerConfig{
		Durable: "test2", SubjectFilter: "player.room1.playout.>",
	})
	require.NoError(t, err)

	r := New(b, s)
	r.Sleep = func(time.Duration) {}

	// windowS=8 centres a +/-4s window on tagTS: the -2s and +0s records
	// fall inside it, the +10s record does not.
	require.NoError(t, r.ReplayTag(ctx, "room1", "tag1", 8, false))

	msgs, err := consumer.Pull(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestReplayTag_UnknownTagErrors(t *testing.T) {
	s := newTestStore(t)
	b := broker.NewMemoryBroker()
	r := New(b, s)

	err := r.ReplayTag(context.Background(), "room1", "missing", 8, false)
	assert.Error(t, err)
}

func TestDecodeHeaders_RoundTrips(t *testing.T) {
	data, err := json.Marshal(map[string]string{"a": "b"})
	require.NoError(t, err)
	headers := decodeHeaders(data)
	assert.Equal(t, "b", headers["a"])
}

func TestDecodeHeaders_InvalidJSONReturnsNil(t *testing.T) {
	assert.Nil(t, decodeHeaders([]byte("not json")))
}
