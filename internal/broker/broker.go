// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package broker implements the subject-based publish/subscribe
// abstraction (C2): at-least-once delivery, per-message idempotency via a
// client-supplied "Nats-Msg-Id" header, pull-style consumers, and stream
// membership/normalisation rules. Two implementations are provided: a
// NATS JetStream adapter for production use, and an in-memory simulator
// used by every other component's tests.
package broker

import (
	"context"
	"time"
)

// MsgIDHeader is the header key carrying the caller-supplied dedup id.
const MsgIDHeader = "Nats-Msg-Id"

// Message is a single broker message as delivered to a consumer.
type Message struct {
	Subject   string
	Data      []byte
	Headers   map[string]string
	Timestamp time.Time
	Sequence  uint64

	// ackToken is an opaque handle the originating Consumer implementation
	// uses to acknowledge this specific message. Callers never inspect it.
	ackToken any
}

// DeliverPolicy selects which messages a pull/push consumer starts from.
type DeliverPolicy int

const (
	// DeliverNew delivers only messages published after consumer creation.
	DeliverNew DeliverPolicy = iota
	// DeliverByStartTime delivers messages from a caller-supplied instant.
	DeliverByStartTime
)

// ConsumerConfig configures a pull or push consumer.
type ConsumerConfig struct {
	Durable           string
	SubjectFilter     string
	DeliverPolicy     DeliverPolicy
	StartTime         time.Time
	ReplayOriginal    bool
	FlowControl       bool
	IdleHeartbeat     time.Duration
	InactiveThreshold time.Duration
}

// Consumer is a cursor over a stream filtered by a subject pattern.
type Consumer interface {
	// Pull fetches up to batch messages, blocking up to the context
	// deadline. Returns an empty slice (not an error) on timeout.
	Pull(ctx context.Context, batch int) ([]Message, error)
	// Pending returns the broker's view of undelivered message count.
	Pending() int
	// Ack acknowledges a message previously returned by Pull. Callers must
	// only ack after the message has been durably processed (e.g. the
	// archiver acks only after the store insert succeeds).
	Ack(msg Message) error
}

// Broker is the capability interface every component depends on.
type Broker interface {
	// Publish appends data to subject with the given headers. If
	// headers[MsgIDHeader] has already been seen within the stream's
	// dedup window, Publish is a no-op and returns false, nil.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string, timestamp time.Time) (bool, error)

	// EnsureStream creates the named stream if absent. If present, it
	// accepts the call only when the existing subject set (after
	// normalisation) equals the requested one.
	EnsureStream(ctx context.Context, name string, subjects []string, replicas int) error

	// CreatePullConsumer returns a batch-pull cursor over stream filtered
	// by cfg.SubjectFilter.
	CreatePullConsumer(ctx context.Context, stream string, cfg ConsumerConfig) (Consumer, error)
}
