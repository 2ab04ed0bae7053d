// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package producer implements C3: a stateless encoder from raw TSPI
// datagrams to canonical records, publishing them through a broker.Broker
// with subject prefixing, dedup headers and an optional sensor allow-list.
package producer

import (
	"context"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/tspi"
)

// Producer turns raw datagrams into published broker messages.
type Producer struct {
	Broker         broker.Broker
	SubjectPrefix  string
	SensorAllowlist map[uint16]struct{}
}

// New constructs a Producer. An empty subjectPrefix defaults to "tspi".
// A nil or empty allowlist disables filtering.
func New(b broker.Broker, subjectPrefix string, allowlist map[uint16]struct{}) *Producer {
	if subjectPrefix == "" {
		subjectPrefix = tspi.DefaultSubjectPrefix
	}
	metrics.Register()
	return &Producer{Broker: b, SubjectPrefix: subjectPrefix, SensorAllowlist: allowlist}
}

// PublishResult is the outcome of a single Publish call, used by the
// asynchronous API to report back over a channel.
type PublishResult struct {
	Published bool
	Err       error
}

func (p *Producer) allowed(sensorID uint16) bool {
	if len(p.SensorAllowlist) == 0 {
		return true
	}
	_, ok := p.SensorAllowlist[sensorID]
	return ok
}

// Publish decodes raw, stamps it with recvTime (wall clock if nil), and
// publishes it to the subject derived from the record. If the record's
// sensor is not in the allow-list the call reports false, nil: this is not
// an error, only a decision not to publish. Decode failures are returned as
// errors, matching the codec's fail-fast contract.
func (p *Producer) Publish(ctx context.Context, raw []byte, recvTime *time.Time) (bool, error) {
	rec, err := tspi.Decode(raw)
	if err != nil {
		metrics.ProducerPublished.WithLabelValues("decode_error").Inc()
		return false, err
	}

	if recvTime == nil {
		now := time.Now()
		recvTime = &now
	}
	rec.StampRecv(*recvTime)

	if !p.allowed(rec.SensorID) {
		log.Debugf("producer: dropping record for sensor %d (not in allow-list)", rec.SensorID)
		metrics.ProducerPublished.WithLabelValues("dropped_allowlist").Inc()
		return false, nil
	}

	body, err := rec.MarshalCBOR()
	if err != nil {
		metrics.ProducerPublished.WithLabelValues("encode_error").Inc()
		return false, err
	}

	subject := rec.BuildSubject(p.SubjectPrefix)
	headers := map[string]string{broker.MsgIDHeader: rec.DedupID()}

	ok, err := p.Broker.Publish(ctx, subject, body, headers, *recvTime)
	if err != nil {
		metrics.ProducerPublished.WithLabelValues("publish_error").Inc()
		return false, err
	}
	if ok {
		metrics.ProducerPublished.WithLabelValues("published").Inc()
	} else {
		metrics.ProducerPublished.WithLabelValues("deduped").Inc()
	}
	return ok, nil
}

// PublishAsync bridges Publish onto a goroutine and reports the outcome on
// the returned channel. It calls Publish exactly once: the synchronous path
// is never re-executed, only relocated onto another goroutine.
func (p *Producer) PublishAsync(ctx context.Context, raw []byte, recvTime *time.Time) <-chan PublishResult {
	out := make(chan PublishResult, 1)
	go func() {
		defer close(out)
		ok, err := p.Publish(ctx, raw, recvTime)
		out <- PublishResult{Published: ok, Err: err}
	}()
	return out
}
