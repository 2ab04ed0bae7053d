// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalise_DropsSubjectsCoveredBySiblingWildcard(t *testing.T) {
	subjects := []string{"tspi.geocentric.1", "tspi.>", "tags.broadcast"}
	got := normalise(subjects)
	assert.ElementsMatch(t, []string{"tspi.>", "tags.broadcast"}, got)

	// Property: normalise(S) is always a subset of S.
	for _, s := range got {
		assert.Contains(t, subjects, s)
	}
}

func TestNormalise_NoWildcardSiblingKeepsAll(t *testing.T) {
	subjects := []string{"tspi.geocentric.1", "tspi.spherical.2", "tags.broadcast"}
	assert.ElementsMatch(t, subjects, normalise(subjects))
}

func TestSubjectMatches_Wildcards(t *testing.T) {
	assert.True(t, subjectMatches("tspi.*.501", "tspi.geocentric.501"))
	assert.False(t, subjectMatches("tspi.*.501", "tspi.geocentric.502"))
	assert.True(t, subjectMatches("tspi.>", "tspi.geocentric.501"))
	assert.True(t, subjectMatches("tspi.>", "tspi.cmd.display.units"))
	assert.False(t, subjectMatches("tspi.>", "tags.broadcast"))
	assert.False(t, subjectMatches("tspi.geocentric.501", "tspi.geocentric.501.extra"))
}

func TestMemoryBroker_PublishIdempotency(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>"}, 1))

	headers := map[string]string{MsgIDHeader: "501:123:15340"}
	ok1, err := b.Publish(ctx, "tspi.geocentric.501", []byte("a"), headers, time.Now())
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := b.Publish(ctx, "tspi.geocentric.501", []byte("a-again"), headers, time.Now())
	require.NoError(t, err)
	assert.False(t, ok2)

	consumer, err := b.CreatePullConsumer(ctx, "TSPI", ConsumerConfig{SubjectFilter: "tspi.>"})
	require.NoError(t, err)
	msgs, err := consumer.Pull(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("a"), msgs[0].Data)
}

func TestMemoryBroker_EnsureStream_RejectsIncompatibleSubjects(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>"}, 1))
	err := b.EnsureStream(ctx, "TSPI", []string{"tags.>"}, 1)
	assert.Error(t, err)
}

func TestMemoryBroker_EnsureStream_AcceptsSameNormalisedSet(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>", "tspi.geocentric.1"}, 1))
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>"}, 1))
}

func TestMemoryBroker_DeliverNew_OnlySeesFutureMessages(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>"}, 1))

	_, err := b.Publish(ctx, "tspi.geocentric.1", []byte("before"), map[string]string{MsgIDHeader: "1"}, time.Now())
	require.NoError(t, err)

	consumer, err := b.CreatePullConsumer(ctx, "TSPI", ConsumerConfig{SubjectFilter: "tspi.>", DeliverPolicy: DeliverNew})
	require.NoError(t, err)

	_, err = b.Publish(ctx, "tspi.geocentric.1", []byte("after"), map[string]string{MsgIDHeader: "2"}, time.Now())
	require.NoError(t, err)

	msgs, err := consumer.Pull(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("after"), msgs[0].Data)
}

func TestMemoryBroker_DeliverByStartTime(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, b.EnsureStream(ctx, "TSPI", []string{"tspi.>"}, 1))

	t0 := time.Now()
	t1 := t0.Add(1 * time.Second)
	t2 := t0.Add(2 * time.Second)

	_, _ = b.Publish(ctx, "tspi.geocentric.1", []byte("m0"), map[string]string{MsgIDHeader: "0"}, t0)
	_, _ = b.Publish(ctx, "tspi.geocentric.1", []byte("m1"), map[string]string{MsgIDHeader: "1"}, t1)
	_, _ = b.Publish(ctx, "tspi.geocentric.1", []byte("m2"), map[string]string{MsgIDHeader: "2"}, t2)

	consumer, err := b.CreatePullConsumer(ctx, "TSPI", ConsumerConfig{
		SubjectFilter: "tspi.>",
		DeliverPolicy: DeliverByStartTime,
		StartTime:     t1,
	})
	require.NoError(t, err)

	msgs, err := consumer.Pull(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("m1"), msgs[0].Data)
	assert.Equal(t, []byte("m2"), msgs[1].Data)
}

func TestMemoryBroker_PublishWithoutMatchingStreamNeverDedups(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	headers := map[string]string{MsgIDHeader: "x"}
	ok1, err := b.Publish(ctx, "unbound.subject", []byte("a"), headers, time.Now())
	require.NoError(t, err)
	assert.True(t, ok1)
	ok2, err := b.Publish(ctx, "unbound.subject", []byte("b"), headers, time.Now())
	require.NoError(t, err)
	assert.True(t, ok2)
}
