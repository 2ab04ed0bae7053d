// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package presence tracks per-client follow state from "tspi.ops.status"
// heartbeats. It is shared mutable state guarded by the assumption that
// every status message for a given client arrives on one consumer and is
// processed serially; Tracker itself adds a mutex so callers that violate
// that assumption still get a correct, if less cheap, answer.
package presence

import (
	"sync"
	"time"
)

// State is a client's observed follow state, not enforced by the tracker.
type State string

const (
	FollowingLivestream    State = "FOLLOWING_LIVESTREAM"
	FollowingGroupReplay   State = "FOLLOWING_GROUP_REPLAY"
	FollowingPrivateReplay State = "FOLLOWING_PRIVATE_REPLAY"
	LiveOverride           State = "LIVE_OVERRIDE"
)

// Status is one observed presence heartbeat.
type Status struct {
	ClientID  string
	ChannelID string
	State     State
	TS        time.Time
	Operator  string
	SourceIP  string
	PingMS    float64
	Override  bool
}

// clientRecord is the tracker's per-client projection: connection_ts is
// set once and never advances, last_seen_ts is monotonic non-decreasing.
type clientRecord struct {
	ConnectionTS time.Time
	LastSeenTS   time.Time
	Latest       Status
}

// Tracker maintains the latest presence projection per client_id.
type Tracker struct {
	mu      sync.Mutex
	clients map[string]*clientRecord
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{clients: make(map[string]*clientRecord)}
}

// Observe applies one heartbeat, enforcing the monotonicity invariants:
// connection_ts is recorded only on first sight of client_id, and an
// out-of-order status (ts older than the last one seen) still moves
// last_seen_ts forward to ts only if ts is not older — an older-timestamped
// heartbeat updates the latest fields but never regresses last_seen_ts.
func (t *Tracker) Observe(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[status.ClientID]
	if !ok {
		rec = &clientRecord{ConnectionTS: status.TS}
		t.clients[status.ClientID] = rec
	}
	rec.Latest = status
	if status.TS.After(rec.LastSeenTS) {
		rec.LastSeenTS = status.TS
	}
}

// Snapshot returns the latest known status per client, for discovery and
// diagnostics. Order is unspecified.
func (t *Tracker) Snapshot() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Status, 0, len(t.clients))
	for _, rec := range t.clients {
		s := rec.Latest
		out = append(out, s)
	}
	return out
}

// ConnectionTS returns the first-seen ts for clientID, or the zero time if
// the client has never been observed.
func (t *Tracker) ConnectionTS(clientID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[clientID]
	if !ok {
		return time.Time{}
	}
	return rec.ConnectionTS
}

// LastSeenTS returns the monotonic last_seen_ts for clientID, or the zero
// time if the client has never been observed.
func (t *Tracker) LastSeenTS(clientID string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.clients[clientID]
	if !ok {
		return time.Time{}
	}
	return rec.LastSeenTS
}
