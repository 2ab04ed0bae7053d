// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBroker is an in-process pub/sub simulator. It is not a test
// double in the mocking sense: it implements the full Broker contract,
// including dedup, stream normalisation and pull-consumer semantics, so
// that component tests exercise real broker behaviour without a network
// dependency.
type MemoryBroker struct {
	mu        sync.Mutex
	streams   map[string][]string // stream name -> normalised subjects
	messages  map[string][]Message
	dedupSeen map[string]map[string]struct{} // stream -> msg id -> seen
}

// NewMemoryBroker constructs an empty simulator.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		streams:   make(map[string][]string),
		messages:  make(map[string][]Message),
		dedupSeen: make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBroker) EnsureStream(_ context.Context, name string, subjects []string, _ int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	norm := normalise(subjects)
	if existing, ok := b.streams[name]; ok {
		if !sameSubjectSet(existing, norm) {
			return fmt.Errorf("broker: stream %q already exists with subjects %v, requested %v", name, existing, norm)
		}
		return nil
	}

	b.streams[name] = norm
	b.messages[name] = nil
	b.dedupSeen[name] = make(map[string]struct{})
	return nil
}

func (b *MemoryBroker) streamForSubject(subject string) (string, bool) {
	for name, subjects := range b.streams {
		for _, s := range subjects {
			if subjectMatches(s, subject) {
				return name, true
			}
		}
	}
	return "", false
}

func (b *MemoryBroker) Publish(_ context.Context, subject string, data []byte, headers map[string]string, timestamp time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stream, ok := b.streamForSubject(subject)
	if !ok {
		// No stream claims this subject: behave as a core (non-JetStream)
		// publish — reported as published but not retained, so no consumer
		// receives it, and never deduplicated.
		return true, nil
	}

	msgID := headers[MsgIDHeader]
	if msgID != "" {
		if _, seen := b.dedupSeen[stream][msgID]; seen {
			return false, nil
		}
		b.dedupSeen[stream][msgID] = struct{}{}
	}

	hdrCopy := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrCopy[k] = v
	}

	b.messages[stream] = append(b.messages[stream], Message{
		Subject:   subject,
		Data:      data,
		Headers:   hdrCopy,
		Timestamp: timestamp,
		Sequence:  uint64(len(b.messages[stream]) + 1),
	})
	return true, nil
}

// CreatePullConsumer returns a cursor over stream's messages matching
// cfg.SubjectFilter, honouring DeliverNew (cursor starts at the current
// tail) and DeliverByStartTime (cursor starts at the first message with
// Timestamp >= cfg.StartTime).
func (b *MemoryBroker) CreatePullConsumer(_ context.Context, stream string, cfg ConsumerConfig) (Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.streams[stream]; !ok {
		return nil, fmt.Errorf("broker: unknown stream %q", stream)
	}

	start := 0
	switch cfg.DeliverPolicy {
	case DeliverNew:
		start = len(b.messages[stream])
	case DeliverByStartTime:
		for i, m := range b.messages[stream] {
			if !m.Timestamp.Before(cfg.StartTime) {
				start = i
				break
			}
			start = i + 1
		}
	}

	return &memoryConsumer{
		broker:  b,
		stream:  stream,
		filter:  cfg.SubjectFilter,
		nextIdx: start,
	}, nil
}

type memoryConsumer struct {
	broker  *MemoryBroker
	stream  string
	filter  string
	mu      sync.Mutex
	nextIdx int
}

func (c *memoryConsumer) Pull(_ context.Context, batch int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	all := c.broker.messages[c.stream]
	out := make([]Message, 0, batch)
	for c.nextIdx < len(all) && len(out) < batch {
		m := all[c.nextIdx]
		c.nextIdx++
		if c.filter == "" || subjectMatches(c.filter, m.Subject) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Ack is a no-op: the in-memory simulator advances the cursor on Pull and
// has no separate redelivery state to clear.
func (c *memoryConsumer) Ack(Message) error { return nil }

func (c *memoryConsumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	all := c.broker.messages[c.stream]
	count := 0
	for i := c.nextIdx; i < len(all); i++ {
		if c.filter == "" || subjectMatches(c.filter, all[i].Subject) {
			count++
		}
	}
	return count
}
