// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	sq "github.com/Masterminds/squirrel"
)

// sqliteDriverRegistered guards sql.Register, which panics if called twice with
// the same driver name.
var sqliteDriverRegistered bool

// Connect opens a SQLite-backed store at dsn, running embedded migrations
// and returning a ready-to-use Store. retentionHorizon bounds how far back
// FetchMessagesBetween/FetchMessagesForTag are willing to look; a zero
// value disables the check.
func Connect(dsn string, retentionHorizon sql.NullTime) (*SQLStore, error) {
	if !sqliteDriverRegistered {
		sql.Register("sqlite3_tspi", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &queryTimingHooks{}))
		sqliteDriverRegistered = true
	}

	db, err := sqlx.Open("sqlite3_tspi", fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open %q failed: %w", dsn, err)
	}
	// SQLite has no real concurrent-writer story; one connection avoids
	// lock-contention errors under the archiver's serialized writes.
	db.SetMaxOpenConns(1)

	if err := migrateSQLite(dsn); err != nil {
		return nil, err
	}

	return &SQLStore{
		db:               db,
		stmtCache:        sq.NewStmtCache(db.DB),
		retentionHorizon: retentionHorizon,
	}, nil
}
