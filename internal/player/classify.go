// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package player

import (
	"encoding/json"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

type subjectKindT int

const (
	kindTelemetry subjectKindT = iota
	kindCommand
	kindTag
)

// subjectKind mirrors the archiver's subject-prefix classification rule,
// kept independent here so the player stays decoupled from the command
// plane's types.
func subjectKind(subject string) subjectKindT {
	switch {
	case strings.Contains(subject, "cmd.display."):
		return kindCommand
	case strings.HasPrefix(subject, "tags."):
		return kindTag
	default:
		return kindTelemetry
	}
}

type commandWireEnvelope struct {
	CmdID   string         `cbor:"cmd_id"`
	Name    string         `cbor:"name"`
	Sender  string         `cbor:"sender"`
	Payload map[string]any `cbor:"payload"`
}

func decodeCommandPayload(data []byte) (*CommandPayload, bool) {
	var env commandWireEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	units, _ := env.Payload["units"].(string)
	return &CommandPayload{
		CmdID:   env.CmdID,
		Name:    env.Name,
		Sender:  env.Sender,
		Units:   units,
		Payload: env.Payload,
	}, true
}

type tagWireEnvelope struct {
	ID        string `cbor:"id"`
	Label     string `cbor:"label"`
	Status    string `cbor:"status"`
	Creator   string `cbor:"creator,omitempty"`
	UpdatedTS string `cbor:"updated_ts"`
}

func decodeTagPayload(data []byte) (*TagPayload, bool) {
	var env tagWireEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	return &TagPayload{
		ID:        env.ID,
		Label:     env.Label,
		Status:    env.Status,
		Creator:   env.Creator,
		UpdatedTS: env.UpdatedTS,
	}, true
}

func jsonRoundtrip(v any) ([]byte, error) {
	return json.Marshal(v)
}
