// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package player

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/tspi"
)

// fakeReceiver hands back a fixed, pre-built slice of RawMessage on its
// first Poll and nothing thereafter.
type fakeReceiver struct {
	raws    []RawMessage
	served  bool
	pending int
}

func (f *fakeReceiver) Poll(ctx context.Context) ([]RawMessage, error) {
	if f.served {
		return nil, nil
	}
	f.served = true
	return f.raws, nil
}

func (f *fakeReceiver) Pending() int { return f.pending }
func (f *fakeReceiver) Close() error { return nil }

func telemetryRaw(t *testing.T, subject string, epochMS int64, seq uint64) RawMessage {
	t.Helper()
	env := &tspi.Envelope{
		Type:     tspi.KindGeocentric,
		SensorID: 501,
		Day:      123,
		TimeS:    float64(epochMS) / 1000,
		Payload:  map[string]float64{"x": 1, "y": 2, "z": 3, "vx": 0, "vy": 0, "vz": 0, "ax": 0, "ay": 0, "az": 0},
	}
	data, err := cbor.Marshal(env)
	require.NoError(t, err)
	return RawMessage{Subject: subject, Data: data, RecvEpochMS: epochMS, RecvISO: isoFor(epochMS), Sequence: seq}
}

func commandRaw(t *testing.T, units string, epochMS int64, seq uint64) RawMessage {
	t.Helper()
	data, err := cbor.Marshal(commandWireEnvelope{
		CmdID: "c1", Name: "display.units", Sender: "op1",
		Payload: map[string]any{"units": units},
	})
	require.NoError(t, err)
	return RawMessage{Subject: "tspi.cmd.display.units", Data: data, RecvEpochMS: epochMS, RecvISO: isoFor(epochMS), Sequence: seq}
}

func tagRaw(t *testing.T, id, status string, epochMS int64, seq uint64) RawMessage {
	t.Helper()
	data, err := cbor.Marshal(tagWireEnvelope{ID: id, Label: "engine start", Status: status})
	require.NoError(t, err)
	return RawMessage{Subject: "tags.broadcast", Data: data, RecvEpochMS: epochMS, RecvISO: isoFor(epochMS), Sequence: seq}
}

func isoFor(epochMS int64) string {
	return "2026-01-01T00:00:00." + padMS(epochMS) + "Z"
}

func padMS(epochMS int64) string {
	s := "000000"
	digits := []byte(s)
	v := epochMS
	for i := len(digits) - 1; i >= 0 && v > 0; i-- {
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits)
}

func newEngineWithRaws(t *testing.T, raws []RawMessage) *Engine {
	t.Helper()
	fr := &fakeReceiver{raws: raws}
	e := New(map[string]ReceiverFactory{
		"live": func(string) (Receiver, error) { return fr, nil },
	}, 2000)
	require.NoError(t, e.SwitchChannel(context.Background(), "live"))
	require.NoError(t, e.Preload(context.Background()))
	return e
}

// TestForwardJumpDeterminism covers property #5 and scenario S5: timeline
// [telemetry@t0, command(units=imperial), tag(id=x, status=active),
// telemetry@t1]; scrubbing straight to the end matches reaching it in two
// scrubs (to index 1, then to the end).
func TestForwardJumpDeterminism(t *testing.T) {
	raws := []RawMessage{
		telemetryRaw(t, "tspi.geocentric.501", 0, 1),
		commandRaw(t, "imperial", 100, 2),
		tagRaw(t, "x", "active", 200, 3),
		telemetryRaw(t, "tspi.geocentric.501", 300, 4),
	}

	direct := newEngineWithRaws(t, raws)
	direct.ScrubToIndex(4)

	stepped := newEngineWithRaws(t, raws)
	stepped.ScrubToIndex(1)
	stepped.ScrubToIndex(4)

	assert.Equal(t, direct.DisplayUnits(), stepped.DisplayUnits())
	assert.Equal(t, "imperial", direct.DisplayUnits())
	assert.Equal(t, direct.Tags(), stepped.Tags())
	_, hasX := direct.Tags()["x"]
	assert.True(t, hasX)
}

// TestBackwardJump_DoesNotRewindLatestState is the engine's core testable
// asymmetry: moving the cursor backward never undoes latest-value state.
func TestBackwardJump_DoesNotRewindLatestState(t *testing.T) {
	raws := []RawMessage{
		telemetryRaw(t, "tspi.geocentric.501", 0, 1),
		commandRaw(t, "imperial", 100, 2),
		tagRaw(t, "x", "active", 200, 3),
		telemetryRaw(t, "tspi.geocentric.501", 300, 4),
	}
	e := newEngineWithRaws(t, raws)
	e.ScrubToIndex(4)
	require.Equal(t, "imperial", e.DisplayUnits())

	e.ScrubToIndex(1)
	assert.Equal(t, 1, e.Position())
	assert.Equal(t, "imperial", e.DisplayUnits(), "latest-value state must not rewind on a backward jump")
	_, hasX := e.Tags()["x"]
	assert.True(t, hasX, "tag state must not rewind on a backward jump")
}

func TestStepOnce_AdvancesOneAtATimeAndEmitsEvents(t *testing.T) {
	raws := []RawMessage{
		telemetryRaw(t, "tspi.geocentric.501", 0, 1),
		commandRaw(t, "imperial", 100, 2),
		tagRaw(t, "x", "active", 200, 3),
	}
	e := newEngineWithRaws(t, raws)

	var kinds []EventKind
	e.OnEvent(func(ev Event) { kinds = append(kinds, ev.Kind) })

	e.StepOnce()
	e.StepOnce()
	e.StepOnce()

	assert.Equal(t, 3, e.Position())
	assert.Contains(t, kinds, EventDisplayUnitsChanged)
	assert.Contains(t, kinds, EventCommandEvent)
	assert.Contains(t, kinds, EventTagEvent)
}

func TestTagDeletedRemovesFromTable(t *testing.T) {
	raws := []RawMessage{
		tagRaw(t, "x", "active", 0, 1),
		tagRaw(t, "x", "deleted", 100, 2),
	}
	e := newEngineWithRaws(t, raws)
	e.ScrubToIndex(2)
	_, ok := e.Tags()["x"]
	assert.False(t, ok)
}

func TestSeek_FindsFirstEntryAtOrAfterTarget(t *testing.T) {
	raws := []RawMessage{
		telemetryRaw(t, "tspi.geocentric.501", 0, 1),
		telemetryRaw(t, "tspi.geocentric.501", 100, 2),
		telemetryRaw(t, "tspi.geocentric.501", 200, 3),
	}
	e := newEngineWithRaws(t, raws)
	e.Seek(isoFor(100))
	assert.Equal(t, 1, e.Position())
}

func TestScrubToIndex_ClampsToBounds(t *testing.T) {
	raws := []RawMessage{telemetryRaw(t, "tspi.geocentric.501", 0, 1)}
	e := newEngineWithRaws(t, raws)

	e.ScrubToIndex(-5)
	assert.Equal(t, 0, e.Position())

	e.ScrubToIndex(999)
	assert.Equal(t, 1, e.Position())
}

func TestTimeline_EvictsOldestWhenOverCapacityAndClampsPosition(t *testing.T) {
	raws := []RawMessage{
		telemetryRaw(t, "tspi.geocentric.501", 0, 1),
		telemetryRaw(t, "tspi.geocentric.501", 100, 2),
		telemetryRaw(t, "tspi.geocentric.501", 200, 3),
	}
	fr := &fakeReceiver{raws: raws}
	e := New(map[string]ReceiverFactory{
		"live": func(string) (Receiver, error) { return fr, nil },
	}, 2)
	require.NoError(t, e.SwitchChannel(context.Background(), "live"))
	require.NoError(t, e.Preload(context.Background()))

	assert.Equal(t, 2, e.Len())
	assert.Equal(t, 0, e.Position())
}

func TestChannelAliasing_LiveAndLivestreamShareAFactory(t *testing.T) {
	called := 0
	e := New(map[string]ReceiverFactory{
		"live": func(string) (Receiver, error) {
			called++
			return &fakeReceiver{}, nil
		},
	}, 10)

	require.NoError(t, e.SwitchChannel(context.Background(), "livestream"))
	assert.Equal(t, 1, called)
}

func TestChannelAliasing_HistoricalAndReplayDefaultShareAFactory(t *testing.T) {
	called := 0
	e := New(map[string]ReceiverFactory{
		"replay.default": func(string) (Receiver, error) {
			called++
			return &fakeReceiver{}, nil
		},
	}, 10)

	require.NoError(t, e.SwitchChannel(context.Background(), "historical"))
	assert.Equal(t, 1, called)
}

func TestSwitchChannel_UnknownChannelErrors(t *testing.T) {
	e := New(map[string]ReceiverFactory{}, 10)
	err := e.SwitchChannel(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestSwitchChannel_ResetsTimelineButKeepsLatestState(t *testing.T) {
	raws := []RawMessage{commandRaw(t, "imperial", 0, 1)}
	e := newEngineWithRaws(t, raws)
	e.ScrubToIndex(1)
	require.Equal(t, "imperial", e.DisplayUnits())

	fr2 := &fakeReceiver{}
	e.factories["other"] = func(string) (Receiver, error) { return fr2, nil }
	require.NoError(t, e.SwitchChannel(context.Background(), "other"))

	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, e.Position())
	assert.Equal(t, "imperial", e.DisplayUnits(), "command latest-value state survives a channel switch")
}

func TestCollectMetrics_ReportsLagFromReceiver(t *testing.T) {
	fr := &fakeReceiver{pending: 7}
	e := New(map[string]ReceiverFactory{
		"live": func(string) (Receiver, error) { return fr, nil },
	}, 10)
	require.NoError(t, e.SwitchChannel(context.Background(), "live"))

	m := e.CollectMetrics()
	assert.Equal(t, 7, m.Lag)
}
