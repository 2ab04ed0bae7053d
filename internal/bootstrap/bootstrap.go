// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bootstrap holds the connect-and-fail-fast sequence shared by
// every tspi-* headless binary: broker connection, store connection and
// the "fatal only when" cases of the error handling design (broker
// unreachable within the connect deadline, store unreachable on startup).
package bootstrap

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	tspinats "github.com/tspi-telemetry/tspi-pipeline/pkg/nats"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/store"
)

// ConnectDeadline bounds how long Broker() waits for the initial
// connection before treating the broker as unreachable.
const ConnectDeadline = 5 * time.Second

// Broker dials the NATS servers in addrs (comma-joined if more than one,
// NATS' own multi-URL convention), falling back to the loaded config's
// address when addrs is empty, and wraps the resulting JetStream context
// as a broker.Broker.
func Broker(addrs []string) (*broker.NATSBroker, *tspinats.Client, error) {
	cfg := tspinats.Keys
	if len(addrs) > 0 {
		cfg.Address = strings.Join(addrs, ",")
	}
	if cfg.Address == "" {
		cfg.Address = config.Keys.Nats.Address
	}
	if cfg.Address == "" {
		return nil, nil, fmt.Errorf("bootstrap: no broker address configured (pass --nats-server or set nats.address)")
	}

	client, err := tspinats.NewClient(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: broker connect failed: %w", err)
	}
	return broker.NewNATSBroker(client.JetStream()), client, nil
}

// Store connects the SQLite-backed store at config.Keys.StoreDSN.
func Store() (store.Store, error) {
	if config.Keys.StoreDSN == "" {
		return nil, fmt.Errorf("bootstrap: store-dsn must not be empty")
	}
	s, err := store.Connect(config.Keys.StoreDSN, sql.NullTime{})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store connect failed: %w", err)
	}
	return s, nil
}
