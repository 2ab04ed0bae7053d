// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

// NATSBroker adapts a JetStream context to the Broker interface.
type NATSBroker struct {
	js nats.JetStreamContext

	mu      sync.Mutex
	streams map[string]struct{}
}

// NewNATSBroker wraps an already-connected JetStream context.
func NewNATSBroker(js nats.JetStreamContext) *NATSBroker {
	return &NATSBroker{js: js, streams: make(map[string]struct{})}
}

func (b *NATSBroker) EnsureStream(_ context.Context, name string, subjects []string, replicas int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.streams[name]; ok {
		return nil
	}

	norm := normalise(subjects)
	if replicas <= 0 {
		replicas = 1
	}

	if info, err := b.js.StreamInfo(name); err == nil {
		if !sameSubjectSet(info.Config.Subjects, norm) {
			return fmt.Errorf("broker: stream %q exists with subjects %v, requested %v", name, info.Config.Subjects, norm)
		}
		b.streams[name] = struct{}{}
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("broker: stream info for %q failed: %w", name, err)
	}

	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  norm,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  replicas,
	})
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			info, infoErr := b.js.StreamInfo(name)
			if infoErr != nil {
				return fmt.Errorf("broker: stream info for %q failed: %w", name, infoErr)
			}
			if !sameSubjectSet(info.Config.Subjects, norm) {
				return fmt.Errorf("broker: stream %q already exists with incompatible subjects %v (need %v)", name, info.Config.Subjects, norm)
			}
		} else {
			return fmt.Errorf("broker: add stream %q failed: %w", name, err)
		}
	}

	b.streams[name] = struct{}{}
	log.Infof("broker: stream %q ready with subjects %v", name, norm)
	return nil
}

func (b *NATSBroker) Publish(ctx context.Context, subject string, data []byte, headers map[string]string, _ time.Time) (bool, error) {
	msg := &nats.Msg{Subject: subject, Data: data, Header: make(nats.Header)}
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	ack, err := b.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return false, fmt.Errorf("broker: publish to %q failed: %w", subject, err)
	}
	if ack.Duplicate {
		return false, nil
	}
	return true, nil
}

func (b *NATSBroker) CreatePullConsumer(ctx context.Context, stream string, cfg ConsumerConfig) (Consumer, error) {
	subOpts := []nats.SubOpt{
		nats.BindStream(stream),
		nats.ManualAck(),
	}
	if cfg.Durable != "" {
		subOpts = append(subOpts, nats.Durable(cfg.Durable))
	}
	switch cfg.DeliverPolicy {
	case DeliverNew:
		subOpts = append(subOpts, nats.DeliverNew())
	case DeliverByStartTime:
		t := cfg.StartTime
		subOpts = append(subOpts, nats.StartTime(t))
	}

	sub, err := b.js.PullSubscribe(cfg.SubjectFilter, cfg.Durable, subOpts...)
	if err != nil {
		return nil, fmt.Errorf("broker: pull subscribe to %q on %q failed: %w", cfg.SubjectFilter, stream, err)
	}

	return &natsConsumer{sub: sub}, nil
}

type natsConsumer struct {
	sub *nats.Subscription
}

func (c *natsConsumer) Pull(ctx context.Context, batch int) ([]Message, error) {
	timeout := 1 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}

	msgs, err := c.sub.Fetch(batch, nats.MaxWait(timeout))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("broker: pull failed: %w", err)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		meta, _ := m.Metadata()
		hdrs := make(map[string]string)
		for k := range m.Header {
			hdrs[k] = m.Header.Get(k)
		}
		ts := time.Now()
		var seq uint64
		if meta != nil {
			ts = meta.Timestamp
			seq = meta.Sequence.Stream
		}
		out = append(out, Message{
			Subject:   m.Subject,
			Data:      m.Data,
			Headers:   hdrs,
			Timestamp: ts,
			Sequence:  seq,
			ackToken:  m,
		})
	}
	return out, nil
}

func (c *natsConsumer) Pending() int {
	info, err := c.sub.ConsumerInfo()
	if err != nil {
		return 0
	}
	return int(info.NumPending)
}

// Ack acknowledges the underlying JetStream message. Processing must
// complete (e.g. the archiver's store insert) before this is called.
func (c *natsConsumer) Ack(msg Message) error {
	m, ok := msg.ackToken.(*nats.Msg)
	if !ok || m == nil {
		return nil
	}
	return m.Ack()
}
