// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package player

// EventKind enumerates the engine's observable event types. Signals
// collapse into this explicit set rather than a larger ad-hoc surface.
type EventKind int

const (
	EventMetrics EventKind = iota
	EventDisplayUnitsChanged
	EventMarkerColorChanged
	EventCommandEvent
	EventTagEvent
	EventStateChanged
	EventGroupReplayChanged
	EventErrorOccurred
)

func (k EventKind) String() string {
	switch k {
	case EventMetrics:
		return "metrics"
	case EventDisplayUnitsChanged:
		return "display_units_changed"
	case EventMarkerColorChanged:
		return "marker_color_changed"
	case EventCommandEvent:
		return "command_event"
	case EventTagEvent:
		return "tag_event"
	case EventStateChanged:
		return "state_changed"
	case EventGroupReplayChanged:
		return "group_replay_changed"
	case EventErrorOccurred:
		return "error_occurred"
	default:
		return "unknown"
	}
}

// Event is emitted on Engine.Events() and to any registered callback.
// Only the field matching Kind is populated.
type Event struct {
	Kind EventKind

	ChannelID   string
	State       State
	Units       string
	MarkerColor string
	Command     *CommandPayload
	Tag         *TagPayload
	Metrics     *Metrics
	Err         error
}
