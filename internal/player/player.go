// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package player implements C8: the cooperative, single-threaded player
// state engine. It pulls from one selected channel's receiver at a time,
// maintains a bounded scrub timeline, applies command/tag side effects
// deterministically on forward traversal, and surfaces metrics and events.
package player

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/schema"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/tspi"
)

// EntryKind distinguishes the three payload shapes a TimelineEntry can
// carry.
type EntryKind int

const (
	EntryTelemetry EntryKind = iota
	EntryCommand
	EntryTag
)

// TimelineEntry is one slot in the bounded scrub buffer.
type TimelineEntry struct {
	Kind        EntryKind
	RecvISO     string
	RecvEpochMS int64
	Sequence    uint64
	Subject     string

	Telemetry *tspi.Envelope
	Command   *CommandPayload
	Tag       *TagPayload
}

// CommandPayload is the player's projection of a display command message.
type CommandPayload struct {
	CmdID   string
	Name    string
	Sender  string
	Units   string
	Payload map[string]any
}

// TagPayload is the player's projection of a tag message.
type TagPayload struct {
	ID        string
	Label     string
	Status    string
	Creator   string
	UpdatedTS string
}

// ReceiverFactory constructs a Receiver bound to channelID.
type ReceiverFactory func(channelID string) (Receiver, error)

// Receiver is the channel-scoped pull source the engine drives. Messages
// returned are already in the form the engine can classify and validate.
type Receiver interface {
	// Poll returns newly available raw broker payloads for this channel.
	// It must never block past ctx's deadline.
	Poll(ctx context.Context) ([]RawMessage, error)
	// Pending reports the broker consumer's view of undelivered messages,
	// surfaced as the engine's "lag" metric.
	Pending() int
	// Close releases any resources the receiver holds (e.g. a consumer).
	Close() error
}

// RawMessage is the channel-agnostic shape a Receiver hands the engine.
type RawMessage struct {
	Subject     string
	Data        []byte
	RecvEpochMS int64
	RecvISO     string
	Sequence    uint64
}

// State is the engine's externally observable position and rate.
type State struct {
	ChannelID string
	Position  int
	Paused    bool
	Rate      float64
}

// Engine is the cooperative single-threaded player state engine. StepOnce
// is non-reentrant: callers must not invoke it concurrently.
type Engine struct {
	factories map[string]ReceiverFactory

	channelID string
	receiver  Receiver

	timeline         []TimelineEntry
	position         int
	scrubHistorySize int

	displayUnits    string
	markerColor     string
	sessionMetadata map[string]any
	tags            map[string]TagPayload

	paused bool
	rate   float64

	smoother *mapSmoother

	events    chan Event
	callbacks []func(Event)
}

// New constructs an Engine with the given channel-id aliases and scrub
// buffer capacity. Canonical aliases "live"/"livestream" and
// "historical"/"replay.default" are always registered against whichever
// factory the caller supplies for their canonical name, if present.
func New(factories map[string]ReceiverFactory, scrubHistorySize int) *Engine {
	if scrubHistorySize <= 0 {
		scrubHistorySize = 2000
	}
	resolved := make(map[string]ReceiverFactory, len(factories)+4)
	for k, v := range factories {
		resolved[k] = v
	}
	aliasInto(resolved, "live", "livestream")
	aliasInto(resolved, "historical", "replay.default")

	metrics.Register()

	return &Engine{
		factories:        resolved,
		scrubHistorySize: scrubHistorySize,
		sessionMetadata:  make(map[string]any),
		tags:             make(map[string]TagPayload),
		rate:             1.0,
		smoother:         newMapSmoother(0.2),
		events:           make(chan Event, 64),
	}
}

// aliasInto registers each name's factory under its alias too, in either
// direction, whichever is present.
func aliasInto(m map[string]ReceiverFactory, a, b string) {
	if f, ok := m[a]; ok {
		if _, exists := m[b]; !exists {
			m[b] = f
		}
	}
	if f, ok := m[b]; ok {
		if _, exists := m[a]; !exists {
			m[a] = f
		}
	}
}

// Events returns the channel events are emitted on. Once its buffer is
// full, further events are dropped from the channel (with a warning) and
// only reach OnEvent callbacks.
func (e *Engine) Events() <-chan Event { return e.events }

// OnEvent registers a synchronous callback invoked (in addition to the
// channel send) for every emitted event, for cooperative single-thread
// embeddings that would rather not poll a channel.
func (e *Engine) OnEvent(cb func(Event)) {
	e.callbacks = append(e.callbacks, cb)
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		log.Warnf("player: event channel full, dropping %v", ev.Kind)
	}
	for _, cb := range e.callbacks {
		cb(ev)
	}
}

// SwitchChannel discards the timeline and resets position-based metrics,
// but preserves latest-value command/tag state.
func (e *Engine) SwitchChannel(ctx context.Context, channelID string) error {
	factory, ok := e.factories[channelID]
	if !ok {
		return fmt.Errorf("player: unknown channel %q", channelID)
	}
	rcv, err := factory(channelID)
	if err != nil {
		return err
	}
	if e.receiver != nil {
		if err := e.receiver.Close(); err != nil {
			log.Warnf("player: close previous receiver failed: %v", err)
		}
	}

	e.receiver = rcv
	e.channelID = channelID
	e.timeline = e.timeline[:0]
	e.position = 0

	e.emit(Event{Kind: EventGroupReplayChanged, ChannelID: channelID})
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
	return nil
}

func (e *Engine) snapshotState() State {
	return State{ChannelID: e.channelID, Position: e.position, Paused: e.paused, Rate: e.rate}
}

// Preload polls the active receiver once and appends the returned batch
// to the timeline, without advancing position or applying
// side effects.
func (e *Engine) Preload(ctx context.Context) error {
	if e.receiver == nil {
		return fmt.Errorf("player: no active channel")
	}
	raws, err := e.receiver.Poll(ctx)
	if err != nil {
		return err
	}
	e.appendRaws(raws)
	return nil
}

func (e *Engine) appendRaws(raws []RawMessage) {
	sort.SliceStable(raws, func(i, j int) bool {
		if raws[i].RecvEpochMS != raws[j].RecvEpochMS {
			return raws[i].RecvEpochMS < raws[j].RecvEpochMS
		}
		return raws[i].Sequence < raws[j].Sequence
	})
	for _, raw := range raws {
		entry, ok := e.classify(raw)
		if !ok {
			continue
		}
		e.timeline = append(e.timeline, entry)
		if len(e.timeline) > e.scrubHistorySize {
			e.timeline = e.timeline[1:]
			if e.position > 0 {
				e.position--
			}
		}
	}
}

// classify validates telemetry payloads against the envelope schema and
// decodes commands/tags, which are always admitted without schema
// validation since their subjects carry no telemetry envelope.
func (e *Engine) classify(raw RawMessage) (TimelineEntry, bool) {
	entry := TimelineEntry{
		RecvISO:     raw.RecvISO,
		RecvEpochMS: raw.RecvEpochMS,
		Sequence:    raw.Sequence,
		Subject:     raw.Subject,
	}

	switch subjectKind(raw.Subject) {
	case kindCommand:
		cmd, ok := decodeCommandPayload(raw.Data)
		if !ok {
			return TimelineEntry{}, false
		}
		entry.Kind = EntryCommand
		entry.Command = cmd
		return entry, true
	case kindTag:
		tag, ok := decodeTagPayload(raw.Data)
		if !ok {
			return TimelineEntry{}, false
		}
		entry.Kind = EntryTag
		entry.Tag = tag
		return entry, true
	default:
		env, err := tspi.DecodeEnvelope(raw.Data)
		if err != nil {
			log.Warnf("player: decode telemetry on %q failed: %v", raw.Subject, err)
			e.emit(Event{Kind: EventErrorOccurred, Err: err})
			return TimelineEntry{}, false
		}
		if envJSON, err := jsonRoundtrip(env); err == nil {
			if err := schema.ValidateBytes(schema.TelemetryEnvelope, envJSON); err != nil {
				log.Warnf("player: schema validation failed on %q: %v", raw.Subject, err)
				e.emit(Event{Kind: EventErrorOccurred, Err: err})
				return TimelineEntry{}, false
			}
		}
		entry.Kind = EntryTelemetry
		entry.Telemetry = env
		if entry.RecvISO == "" {
			entry.RecvISO = env.RecvISO
		}
		if entry.RecvEpochMS == 0 {
			entry.RecvEpochMS = env.RecvEpochMS
		}
		return entry, true
	}
}

// StepOnce advances position by one and applies the entry's side effect.
// Non-reentrant: callers must serialise calls to StepOnce against each
// other and against Seek/ScrubToIndex.
func (e *Engine) StepOnce() {
	if e.position >= len(e.timeline) {
		return
	}
	e.applyForward(e.timeline[e.position])
	e.position++
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
}

func (e *Engine) applyForward(entry TimelineEntry) {
	switch entry.Kind {
	case EntryTelemetry:
		if entry.Telemetry != nil {
			e.smoother.observe(entry.Telemetry)
		}
	case EntryCommand:
		e.applyCommand(*entry.Command)
	case EntryTag:
		e.applyTag(*entry.Tag)
	}
}

func (e *Engine) applyCommand(cmd CommandPayload) {
	if cmd.Units != "" {
		prev := e.displayUnits
		e.displayUnits = cmd.Units
		if prev != e.displayUnits {
			e.emit(Event{Kind: EventDisplayUnitsChanged, Units: e.displayUnits})
		}
	}
	if color, ok := cmd.Payload["marker_color"].(string); ok && color != "" {
		prev := e.markerColor
		e.markerColor = color
		if prev != e.markerColor {
			e.emit(Event{Kind: EventMarkerColorChanged, MarkerColor: e.markerColor})
		}
	}
	for k, v := range cmd.Payload {
		if k == "marker_color" {
			continue
		}
		e.sessionMetadata[k] = v
	}
	e.emit(Event{Kind: EventCommandEvent, Command: &cmd})
}

func (e *Engine) applyTag(tag TagPayload) {
	if tag.Status == "deleted" {
		delete(e.tags, tag.ID)
	} else {
		e.tags[tag.ID] = tag
	}
	e.emit(Event{Kind: EventTagEvent, Tag: &tag})
}

// Seek finds the first timeline entry whose recv_iso is >= target and
// replays forward to it (or to the end, if none qualifies).
func (e *Engine) Seek(target string) {
	idx := len(e.timeline)
	for i, entry := range e.timeline {
		if entry.RecvISO >= target {
			idx = i
			break
		}
	}
	e.ScrubToIndex(idx)
}

// ScrubToIndex clamps i to [0, len(timeline)] and moves the cursor there.
// Forward jumps replay every intervening command/tag so latest-value
// state matches a continuous playthrough. Backward jumps only move the
// cursor: latest-value state is never rewound.
func (e *Engine) ScrubToIndex(i int) {
	if i < 0 {
		i = 0
	}
	if i > len(e.timeline) {
		i = len(e.timeline)
	}

	if i > e.position {
		for idx := e.position; idx < i; idx++ {
			e.applyForward(e.timeline[idx])
		}
	}
	e.position = i
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
}

// SetRate sets the playback rate multiplier gating the timer-driven tick.
func (e *Engine) SetRate(rate float64) {
	e.rate = rate
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
}

// Pause halts StepOnce from being driven by the caller's timer loop; it is
// advisory (StepOnce itself does not check it, callers do).
func (e *Engine) Pause() {
	e.paused = true
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
}

// Play clears the pause flag.
func (e *Engine) Play() {
	e.paused = false
	e.emit(Event{Kind: EventStateChanged, State: e.snapshotState()})
}

// DisplayUnits returns the latest display_units value set by a command.
func (e *Engine) DisplayUnits() string { return e.displayUnits }

// MarkerColor returns the latest marker_color value set by a command.
func (e *Engine) MarkerColor() string { return e.markerColor }

// Tags returns a snapshot of the current tag table (excludes deleted).
func (e *Engine) Tags() map[string]TagPayload {
	out := make(map[string]TagPayload, len(e.tags))
	for k, v := range e.tags {
		out[k] = v
	}
	return out
}

// Position returns the current cursor index.
func (e *Engine) Position() int { return e.position }

// Len returns the number of entries currently in the timeline.
func (e *Engine) Len() int { return len(e.timeline) }

// Metrics is the §4.8 metrics tuple, emitted at metrics_interval cadence
// or on forced events by the caller's timer loop.
type Metrics struct {
	Frames   int
	Rate     float64
	Clock    time.Time
	Lag      int
	Source   string
	Position int
	Timeline int
}

// CollectMetrics materialises the current metrics tuple.
func (e *Engine) CollectMetrics() Metrics {
	lag := 0
	if e.receiver != nil {
		lag = e.receiver.Pending()
	}
	metrics.PlayerLag.WithLabelValues(e.channelID).Set(float64(lag))
	metrics.PlayerPosition.WithLabelValues(e.channelID).Set(float64(e.position))

	return Metrics{
		Rate:     e.rate,
		Clock:    time.Now(),
		Lag:      lag,
		Source:   e.channelID,
		Position: e.position,
		Timeline: len(e.timeline),
	}
}

// EmitMetrics collects and emits the metrics tuple as an event, for a
// caller's metrics_interval timer loop or a forced refresh.
func (e *Engine) EmitMetrics() Metrics {
	m := e.CollectMetrics()
	e.emit(Event{Kind: EventMetrics, Metrics: &m})
	return m
}
