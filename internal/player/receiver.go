// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package player

import (
	"context"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// BrokerReceiver adapts a broker.Consumer into the player's Receiver
// interface, auto-acknowledging every pulled message: the player's
// timeline is a read-side projection, not a durable sink, so there is
// nothing to retry by holding messages unacked.
type BrokerReceiver struct {
	Consumer  broker.Consumer
	BatchSize int
	seq       uint64
}

// NewBrokerReceiver constructs a Receiver over consumer, pulling up to
// batchSize messages per Poll.
func NewBrokerReceiver(consumer broker.Consumer, batchSize int) *BrokerReceiver {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &BrokerReceiver{Consumer: consumer, BatchSize: batchSize}
}

func (r *BrokerReceiver) Poll(ctx context.Context) ([]RawMessage, error) {
	pullCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	msgs, err := r.Consumer.Pull(pullCtx, r.BatchSize)
	if err != nil {
		return nil, err
	}

	raws := make([]RawMessage, 0, len(msgs))
	for _, msg := range msgs {
		r.seq++
		raw := RawMessage{
			Subject:     msg.Subject,
			Data:        msg.Data,
			RecvEpochMS: msg.Timestamp.UnixMilli(),
			RecvISO:     msg.Timestamp.UTC().Format(time.RFC3339Nano),
			Sequence:    r.seq,
		}
		raws = append(raws, raw)
		if err := r.Consumer.Ack(msg); err != nil {
			continue
		}
	}
	return raws, nil
}

func (r *BrokerReceiver) Pending() int { return r.Consumer.Pending() }

func (r *BrokerReceiver) Close() error { return nil }
