// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// ControlSubject is the single subject all channel control broadcasts are
// published on.
const ControlSubject = "tspi.ops.ctrl"

// SenderHeader identifies the operator or service that issued a control
// message.
const SenderHeader = "X-Tspi-Sender"

type groupReplayStart struct {
	Type        string  `cbor:"type"`
	ChannelID   string  `cbor:"channel_id"`
	DisplayName string  `cbor:"display_name"`
	Stream      string  `cbor:"stream"`
	Identifier  *string `cbor:"identifier,omitempty"`
}

type groupReplayStop struct {
	Type      string `cbor:"type"`
	ChannelID string `cbor:"channel_id"`
}

// ControlSender publishes channel lifecycle broadcasts to ControlSubject.
type ControlSender struct {
	Broker broker.Broker
}

// NewControlSender wraps b for publishing control broadcasts.
func NewControlSender(b broker.Broker) *ControlSender {
	return &ControlSender{Broker: b}
}

func (c *ControlSender) publish(ctx context.Context, channelID, verb, sender string, body any) error {
	data, err := cbor.Marshal(body)
	if err != nil {
		return fmt.Errorf("channels: encode control message failed: %w", err)
	}

	headers := map[string]string{
		broker.MsgIDHeader: fmt.Sprintf("%s:%s:%s", channelID, verb, uuid.NewString()),
	}
	if sender != "" {
		headers[SenderHeader] = sender
	}

	_, err = c.Broker.Publish(ctx, ControlSubject, data, headers, time.Now())
	if err != nil {
		return fmt.Errorf("channels: publish %s for %q failed: %w", verb, channelID, err)
	}
	return nil
}

// BroadcastStart announces that desc has started accepting traffic.
func (c *ControlSender) BroadcastStart(ctx context.Context, desc Descriptor, sender string) error {
	var identifier *string
	if desc.Identifier != "" {
		identifier = &desc.Identifier
	}
	return c.publish(ctx, desc.ChannelID, "start", sender, groupReplayStart{
		Type:        "GroupReplayStart",
		ChannelID:   desc.ChannelID,
		DisplayName: desc.DisplayName,
		Stream:      desc.Stream,
		Identifier:  identifier,
	})
}

// BroadcastStop announces that channelID has been removed.
func (c *ControlSender) BroadcastStop(ctx context.Context, channelID, sender string) error {
	return c.publish(ctx, channelID, "stop", sender, groupReplayStop{
		Type:      "GroupReplayStop",
		ChannelID: channelID,
	})
}
