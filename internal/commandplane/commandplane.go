// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package commandplane implements C5: display commands and tag
// create/update/delete broadcasts, both published as CBOR over the broker
// with caller-facing payload validation.
package commandplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// ValidationError reports a malformed command or tag payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "commandplane: " + e.Reason }

// PublishFailed wraps a broker publish failure.
type PublishFailed struct {
	Err error
}

func (e *PublishFailed) Error() string { return fmt.Sprintf("commandplane: publish failed: %v", e.Err) }
func (e *PublishFailed) Unwrap() error { return e.Err }

type commandEnvelope struct {
	CmdID   string         `cbor:"cmd_id"`
	Name    string         `cbor:"name"`
	TS      string         `cbor:"ts"`
	Sender  string         `cbor:"sender"`
	Payload map[string]any `cbor:"payload"`
}

// CommandSender publishes validated display commands.
type CommandSender struct {
	Broker        broker.Broker
	SubjectPrefix string
}

// NewCommandSender wraps b. subjectPrefix defaults to "tspi".
func NewCommandSender(b broker.Broker, subjectPrefix string) *CommandSender {
	if subjectPrefix == "" {
		subjectPrefix = "tspi"
	}
	return &CommandSender{Broker: b, SubjectPrefix: subjectPrefix}
}

func validateCommandPayload(name string, payload map[string]any) error {
	switch name {
	case "display.units":
		units, _ := payload["units"].(string)
		u := strings.ToLower(strings.TrimSpace(units))
		if u != "metric" && u != "imperial" {
			return &ValidationError{Reason: fmt.Sprintf("display.units requires units in {metric, imperial}, got %q", units)}
		}
	case "display.marker_color":
		color, _ := payload["marker_color"].(string)
		if strings.TrimSpace(color) == "" {
			return &ValidationError{Reason: "display.marker_color requires a non-empty marker_color"}
		}
	case "display.session_metadata":
		meta, ok := payload["session_metadata"].(map[string]any)
		if !ok {
			return &ValidationError{Reason: "display.session_metadata requires a session_metadata object"}
		}
		name, _ := meta["name"].(string)
		id, _ := meta["id"].(string)
		if strings.TrimSpace(name) == "" || strings.TrimSpace(id) == "" {
			return &ValidationError{Reason: "display.session_metadata requires non-empty name and id"}
		}
	}
	return nil
}

// Send publishes a display command under tspi.cmd.<name> (name already
// carries the "display." token, e.g. "display.units") after validating
// payload against the command-specific rules.
func (c *CommandSender) Send(ctx context.Context, name, sender string, payload map[string]any) error {
	if err := validateCommandPayload(name, payload); err != nil {
		return err
	}

	cmdID := uuid.NewString()
	body, err := cbor.Marshal(commandEnvelope{
		CmdID:   cmdID,
		Name:    name,
		TS:      time.Now().UTC().Format(time.RFC3339),
		Sender:  sender,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("commandplane: encode command %q failed: %w", name, err)
	}

	subject := fmt.Sprintf("%s.cmd.%s", c.SubjectPrefix, name)
	if _, err := c.Broker.Publish(ctx, subject, body, map[string]string{broker.MsgIDHeader: cmdID}, time.Now()); err != nil {
		return &PublishFailed{Err: err}
	}
	return nil
}
