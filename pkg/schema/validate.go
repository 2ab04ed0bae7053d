// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema embeds and validates JSON Schemas (draft 2020-12) used
// across the pipeline: the program configuration and the telemetry
// envelope that the player state engine validates incoming messages
// against (§4.8).
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

// Kind identifies which embedded schema to validate against.
type Kind int

const (
	Config Kind = iota + 1
	TelemetryEnvelope
)

//go:embed schemas/*
var schemaFiles embed.FS

// Load implements jsonschema.Loader for the "embedFS" URL scheme.
func Load(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = Load
}

// Validate decodes JSON from r and validates it against the schema
// identified by k.
func Validate(k Kind, r io.Reader) error {
	var s *jsonschema.Schema
	var err error

	switch k {
	case Config:
		s, err = jsonschema.Compile("embedFS://schemas/config.schema.json")
	case TelemetryEnvelope:
		s, err = jsonschema.Compile("embedFS://schemas/telemetry-envelope.schema.json")
	default:
		return fmt.Errorf("schema: unknown kind %d", k)
	}
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		log.Errorf("schema.Validate() - failed to decode: %v", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}

// ValidateBytes is a convenience wrapper over Validate for already-decoded
// JSON bytes (e.g. a re-marshalled CBOR envelope).
func ValidateBytes(k Kind, data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var s *jsonschema.Schema
	var err error
	switch k {
	case Config:
		s, err = jsonschema.Compile("embedFS://schemas/config.schema.json")
	case TelemetryEnvelope:
		s, err = jsonschema.Compile("embedFS://schemas/telemetry-envelope.schema.json")
	default:
		return fmt.Errorf("schema: unknown kind %d", k)
	}
	if err != nil {
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}
