// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archiver implements C6: the cooperative drain loop that fans
// broker traffic into the durable store, classifying each message by
// subject prefix and acknowledging only after a successful store write.
package archiver

import (
	"context"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/store"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/tspi"
)

const (
	subjectTelemetryWildcard = "tspi.>"
	subjectCommandWildcard   = "tspi.cmd.display.>"
	subjectTagWildcard       = "tags.>"

	// streamName is the single stream backing all three consumers: tspi.>
	// already covers tspi.cmd.display.>, so command traffic is a narrower
	// filter over the same stream rather than a second, overlapping one.
	// JetStream forbids two streams from claiming the same subject space.
	streamName = "TSPI"
)

type messageKind int

const (
	kindUnknown messageKind = iota
	kindTelemetry
	kindCommand
	kindTag
)

// classify implements the subject-prefix classification rule: cmd.display.
// -> command, tags. -> tag, tspi. or *.tspi. -> telemetry.
func classify(subject string) messageKind {
	switch {
	case strings.Contains(subject, "cmd.display."):
		return kindCommand
	case strings.HasPrefix(subject, "tags."):
		return kindTag
	case strings.HasPrefix(subject, "tspi.") || strings.Contains(subject, ".tspi."):
		return kindTelemetry
	default:
		return kindUnknown
	}
}

// Archiver drains the three broker consumers into the store.
type Archiver struct {
	Broker    broker.Broker
	Store     store.Store
	BatchSize int

	telemetry broker.Consumer
	command   broker.Consumer
	tag       broker.Consumer
}

// New constructs an Archiver. Call EnsureConsumers before Drain.
func New(b broker.Broker, s store.Store, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = 64
	}
	metrics.Register()
	return &Archiver{Broker: b, Store: s, BatchSize: batchSize}
}

// EnsureConsumers creates (or reuses) the single TSPI stream and the three
// pull consumers the drain loop round-robins across.
func (a *Archiver) EnsureConsumers(ctx context.Context) error {
	if err := a.Broker.EnsureStream(ctx, streamName, []string{subjectTelemetryWildcard, subjectTagWildcard}, 1); err != nil {
		return err
	}

	var err error
	a.telemetry, err = a.Broker.CreatePullConsumer(ctx, streamName, broker.ConsumerConfig{
		Durable: "archiver-telemetry", SubjectFilter: subjectTelemetryWildcard,
	})
	if err != nil {
		return err
	}
	a.command, err = a.Broker.CreatePullConsumer(ctx, streamName, broker.ConsumerConfig{
		Durable: "archiver-command", SubjectFilter: subjectCommandWildcard,
	})
	if err != nil {
		return err
	}
	a.tag, err = a.Broker.CreatePullConsumer(ctx, streamName, broker.ConsumerConfig{
		Durable: "archiver-tag", SubjectFilter: subjectTagWildcard,
	})
	return err
}

// Drain pulls one batch from each consumer in turn and persists newly seen
// messages. It returns the count of rows newly persisted this pass.
func (a *Archiver) Drain(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.ArchiverDrainDuration.Observe(time.Since(start).Seconds()) }()

	persisted := 0
	for _, consumer := range []broker.Consumer{a.telemetry, a.command, a.tag} {
		n, err := a.drainOne(ctx, consumer)
		if err != nil {
			return persisted, err
		}
		persisted += n
	}
	return persisted, nil
}

func (a *Archiver) drainOne(ctx context.Context, consumer broker.Consumer) (int, error) {
	pullCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	msgs, err := consumer.Pull(pullCtx, a.BatchSize)
	if err != nil {
		return 0, err
	}

	persisted := 0
	for _, msg := range msgs {
		ok, err := a.process(ctx, msg)
		if err != nil {
			log.Errorf("archiver: processing %q failed: %v", msg.Subject, err)
			continue
		}
		if ok {
			persisted++
		}
		// Acknowledgement follows the store write, never precedes it.
		if err := consumer.Ack(msg); err != nil {
			log.Warnf("archiver: ack for %q failed: %v", msg.Subject, err)
		}
	}
	return persisted, nil
}

func (a *Archiver) process(ctx context.Context, msg broker.Message) (bool, error) {
	rec := classifyAndBuildRecord(msg)

	id, inserted, err := a.Store.InsertMessage(ctx, rec)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}
	metrics.MessagesArchived.WithLabelValues(rec.Kind).Inc()

	switch classify(msg.Subject) {
	case kindCommand:
		cmd, ok := decodeCommand(msg, id)
		if ok {
			if err := a.Store.UpsertCommand(ctx, cmd); err != nil {
				return true, err
			}
		}
	case kindTag:
		tag, ok := decodeTag(msg, id)
		if ok {
			if err := a.Store.ApplyTagEvent(ctx, tag); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

func classifyAndBuildRecord(msg broker.Message) store.MessageRecord {
	kind := classify(msg.Subject)

	rec := store.MessageRecord{
		Subject:     msg.Subject,
		NatsMsgID:   msg.Headers[broker.MsgIDHeader],
		PublishedTS: normaliseTimestamp(msg),
		Headers:     marshalHeaders(msg.Headers),
		CBOR:        msg.Data,
	}

	switch kind {
	case kindTelemetry:
		rec.Kind = "telemetry"
		if env, err := tspi.DecodeEnvelope(msg.Data); err == nil {
			rec.MessageType = string(env.Type)
			sensorID := env.SensorID
			day := env.Day
			timeS := env.TimeS
			rec.SensorID = &sensorID
			rec.Day = &day
			rec.TimeS = &timeS
			rec.RecvEpochMS = &env.RecvEpochMS
			rec.RecvISO = env.RecvISO
			rec.Payload = marshalPayload(env.Payload)
			rec.TSPIExtracts = marshalStatusFlags(env.StatusFlags)
		}
	case kindCommand:
		rec.Kind = "command"
	case kindTag:
		rec.Kind = "tag"
	default:
		rec.Kind = "unknown"
	}
	return rec
}

// normaliseTimestamp prefers broker-reported metadata and falls back to
// wall clock, per the archiver's classification/normalisation rule.
func normaliseTimestamp(msg broker.Message) time.Time {
	if !msg.Timestamp.IsZero() {
		return msg.Timestamp
	}
	return time.Now()
}

type commandEnvelope struct {
	CmdID   string         `cbor:"cmd_id"`
	Name    string         `cbor:"name"`
	TS      string         `cbor:"ts"`
	Sender  string         `cbor:"sender"`
	Payload map[string]any `cbor:"payload"`
}

func decodeCommand(msg broker.Message, messageID int64) (store.CommandRecord, bool) {
	var env commandEnvelope
	if err := cbor.Unmarshal(msg.Data, &env); err != nil {
		log.Warnf("archiver: decode command on %q failed: %v", msg.Subject, err)
		return store.CommandRecord{}, false
	}
	ts, _ := time.Parse(time.RFC3339, env.TS)

	units, _ := env.Payload["units"].(string)
	return store.CommandRecord{
		CmdID:       env.CmdID,
		Name:        env.Name,
		TS:          ts,
		Sender:      env.Sender,
		Units:       units,
		Payload:     marshalPayload(env.Payload),
		PublishedTS: normaliseTimestamp(msg),
		MessageID:   messageID,
	}, true
}

type tagEnvelope struct {
	ID        string         `cbor:"id"`
	TS        string         `cbor:"ts"`
	Label     string         `cbor:"label"`
	Status    string         `cbor:"status"`
	UpdatedTS string         `cbor:"updated_ts"`
	Creator   string         `cbor:"creator,omitempty"`
	Notes     string         `cbor:"notes,omitempty"`
	Extra     map[string]any `cbor:"extra,omitempty"`
}

func decodeTag(msg broker.Message, messageID int64) (store.TagRecord, bool) {
	var env tagEnvelope
	if err := cbor.Unmarshal(msg.Data, &env); err != nil {
		log.Warnf("archiver: decode tag on %q failed: %v", msg.Subject, err)
		return store.TagRecord{}, false
	}
	ts, _ := time.Parse(time.RFC3339, env.TS)
	updatedTS, _ := time.Parse(time.RFC3339, env.UpdatedTS)

	return store.TagRecord{
		ID:        env.ID,
		TS:        ts,
		Creator:   env.Creator,
		Label:     env.Label,
		Notes:     env.Notes,
		Extra:     marshalPayload(env.Extra),
		Status:    env.Status,
		UpdatedTS: updatedTS,
		MessageID: messageID,
	}, true
}
