// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserve_ConnectionTSSetOnceOnFirstSight(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Second)

	tr.Observe(Status{ClientID: "c1", TS: t0, State: FollowingLivestream})
	tr.Observe(Status{ClientID: "c1", TS: t1, State: FollowingLivestream})

	assert.Equal(t, t0, tr.ConnectionTS("c1"))
}

// TestObserve_LastSeenMonotonicity covers property #8: for every client,
// the sequence of last_seen_ts values is non-decreasing.
func TestObserve_LastSeenMonotonicity(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Observe(Status{ClientID: "c1", TS: t0})
	tr.Observe(Status{ClientID: "c1", TS: t0.Add(1 * time.Second)})
	tr.Observe(Status{ClientID: "c1", TS: t0.Add(500 * time.Millisecond)}) // out of order, older
	tr.Observe(Status{ClientID: "c1", TS: t0.Add(2 * time.Second)})

	assert.Equal(t, t0.Add(2*time.Second), tr.LastSeenTS("c1"))
}

func TestObserve_UnknownClientReturnsZeroTime(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.ConnectionTS("nonexistent").IsZero())
	assert.True(t, tr.LastSeenTS("nonexistent").IsZero())
}

func TestObserve_TracksMultipleClientsIndependently(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Observe(Status{ClientID: "c1", TS: t0, State: FollowingLivestream})
	tr.Observe(Status{ClientID: "c2", TS: t0.Add(10 * time.Second), State: FollowingGroupReplay})

	assert.Equal(t, t0, tr.ConnectionTS("c1"))
	assert.Equal(t, t0.Add(10*time.Second), tr.ConnectionTS("c2"))
}

func TestSnapshot_ReturnsLatestStatusPerClient(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Observe(Status{ClientID: "c1", TS: t0, State: FollowingLivestream, ChannelID: "livestream"})
	tr.Observe(Status{ClientID: "c1", TS: t0.Add(time.Second), State: FollowingGroupReplay, ChannelID: "replay.x"})

	snap := tr.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "replay.x", snap[0].ChannelID)
	assert.Equal(t, FollowingGroupReplay, snap[0].State)
}

func TestObserve_OverrideAndPingCarried(t *testing.T) {
	tr := NewTracker()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.Observe(Status{ClientID: "c1", TS: t0, State: LiveOverride, Override: true, PingMS: 42.5, Operator: "op1"})

	snap := tr.Snapshot()
	assert.Len(t, snap, 1)
	assert.True(t, snap[0].Override)
	assert.Equal(t, 42.5, snap[0].PingMS)
	assert.Equal(t, "op1", snap[0].Operator)
}
