// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package channels implements the channel control plane (C4): the
// livestream singleton, operator-managed group replays, per-client private
// replays, and the consumer-configuration rules each channel kind implies.
package channels

import (
	"fmt"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// Kind identifies the category of a channel.
type Kind string

const (
	KindLivestream    Kind = "livestream"
	KindGroupReplay   Kind = "group_replay"
	KindPrivateReplay Kind = "private_replay"
)

// LivestreamChannelID is the permanent identifier of the livestream channel.
const LivestreamChannelID = "livestream"

// ValidationError reports a malformed channel request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "channels: " + e.Reason }

// Descriptor describes a single routable channel.
type Descriptor struct {
	ChannelID   string
	Subject     string
	DisplayName string
	Kind        Kind
	Stream      string
	Identifier  string // ISO timestamp or trimmed free-form label, empty for livestream/private
}

func livestreamDescriptor(subjectPrefix string) Descriptor {
	return Descriptor{
		ChannelID:   LivestreamChannelID,
		Subject:     fmt.Sprintf("%s.channel.livestream", subjectPrefix),
		DisplayName: "Livestream",
		Kind:        KindLivestream,
	}
}
