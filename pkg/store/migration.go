// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	// registers the sqlite3 database driver with golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

//go:embed migrations/sqlite3/*
var migrationFiles embed.FS

// migrateSQLite applies every pending migration. Unlike the source this
// schema was grounded on, there is no version gate: the spec calls for
// tables created idempotently on connect, with no separate migration step
// for operators to run.
func migrateSQLite(dsn string) error {
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("store: load migration source failed: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite3://%s?_foreign_keys=on", dsn))
	if err != nil {
		return fmt.Errorf("store: init migrator failed: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations failed: %w", err)
	}

	log.Info("store: schema up to date")
	return nil
}
