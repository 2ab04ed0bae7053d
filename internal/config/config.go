// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the pipeline's process-wide
// configuration: broker address, store DSN, subject prefix and the tuning
// knobs shared by the producer/archiver/replayer/player binaries.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/nats"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/schema"
)

// ProgramConfig is the full configuration surface shared by every
// tspi-* binary. Only the fields a given binary needs are read.
type ProgramConfig struct {
	Nats               nats.NatsConfig `json:"nats"`
	StoreDriver        string          `json:"store-driver"`
	StoreDSN           string          `json:"store-dsn"`
	SubjectPrefix      string          `json:"subject-prefix"`
	StreamName         string          `json:"stream-name"`
	BatchSize          int             `json:"batch-size"`
	ScrubHistorySize   int             `json:"scrub-history-size"`
	MetricsIntervalMS  int             `json:"metrics-interval-ms"`
}

// Keys holds the global configuration loaded via Init.
var Keys = ProgramConfig{
	StoreDriver:       "sqlite3",
	StoreDSN:          "./var/tspi.db",
	SubjectPrefix:     "tspi",
	StreamName:        "TSPI",
	BatchSize:         64,
	ScrubHistorySize:  2000,
	MetricsIntervalMS: 1000,
}

// Init reads flagConfigFile, validates it against the embedded JSON Schema
// and decodes it into Keys. A missing file is not an error: defaults
// apply. An internally inconsistent configuration (e.g. missing broker
// address) is fatal, per the spec's fatal-error policy.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %q failed: %w", flagConfigFile, err)
	}

	if err := schema.Validate(schema.Config, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("config: validate %q failed: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode %q failed: %w", flagConfigFile, err)
	}

	if Keys.Nats.Address == "" {
		return fmt.Errorf("config: nats.address must not be empty")
	}
	if Keys.StoreDSN == "" {
		return fmt.Errorf("config: store-dsn must not be empty")
	}

	log.Infof("config: loaded from %s", flagConfigFile)
	return nil
}
