// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// SQLStore is the sqlite3/sqlx-backed Store implementation.
type SQLStore struct {
	db               *sqlx.DB
	stmtCache        *sq.StmtCache
	retentionHorizon sql.NullTime
}

var _ Store = (*SQLStore)(nil)

// messageRow mirrors the messages table for sqlx scanning.
type messageRow struct {
	ID           int64          `db:"id"`
	Subject      string         `db:"subject"`
	Kind         string         `db:"kind"`
	NatsMsgID    string         `db:"nats_msg_id"`
	PublishedTS  time.Time      `db:"published_ts"`
	RecvEpochMS  sql.NullInt64  `db:"recv_epoch_ms"`
	RecvISO      sql.NullString `db:"recv_iso"`
	MessageType  sql.NullString `db:"message_type"`
	SensorID     sql.NullInt64  `db:"sensor_id"`
	Day          sql.NullInt64  `db:"day"`
	TimeS        sql.NullFloat64 `db:"time_s"`
	Payload      []byte         `db:"payload"`
	Headers      []byte         `db:"headers"`
	TSPIExtracts []byte         `db:"tspi_extracts"`
	CBOR         []byte         `db:"cbor"`
}

func (row messageRow) toRecord() MessageRecord {
	rec := MessageRecord{
		ID:          row.ID,
		Subject:     row.Subject,
		Kind:        row.Kind,
		NatsMsgID:   row.NatsMsgID,
		PublishedTS: row.PublishedTS,
		Payload:     row.Payload,
		Headers:     row.Headers,
		TSPIExtracts: row.TSPIExtracts,
		CBOR:        row.CBOR,
	}
	if row.RecvEpochMS.Valid {
		v := row.RecvEpochMS.Int64
		rec.RecvEpochMS = &v
	}
	if row.RecvISO.Valid {
		rec.RecvISO = row.RecvISO.String
	}
	if row.MessageType.Valid {
		rec.MessageType = row.MessageType.String
	}
	if row.SensorID.Valid {
		v := uint16(row.SensorID.Int64)
		rec.SensorID = &v
	}
	if row.Day.Valid {
		v := uint16(row.Day.Int64)
		rec.Day = &v
	}
	if row.TimeS.Valid {
		v := row.TimeS.Float64
		rec.TimeS = &v
	}
	return rec
}

// isArchivableSubject implements the "non-livestream channel traffic is not
// archived" rule from the store contract: fan-out copies published onto
// group/private replay channel subjects are dropped, while the livestream
// channel (and every non-channel subject) is kept.
func isArchivableSubject(subject string) bool {
	if !strings.HasPrefix(subject, "tspi.channel.") {
		return true
	}
	return subject == "tspi.channel.livestream"
}

func (s *SQLStore) InsertMessage(ctx context.Context, rec MessageRecord) (int64, bool, error) {
	if !isArchivableSubject(rec.Subject) {
		return 0, false, nil
	}

	var sensorID, day sql.NullInt64
	var timeS sql.NullFloat64
	var recvEpochMS sql.NullInt64
	if rec.SensorID != nil {
		sensorID = sql.NullInt64{Int64: int64(*rec.SensorID), Valid: true}
	}
	if rec.Day != nil {
		day = sql.NullInt64{Int64: int64(*rec.Day), Valid: true}
	}
	if rec.TimeS != nil {
		timeS = sql.NullFloat64{Float64: *rec.TimeS, Valid: true}
	}
	if rec.RecvEpochMS != nil {
		recvEpochMS = sql.NullInt64{Int64: *rec.RecvEpochMS, Valid: true}
	}

	res, err := sq.Insert("messages").
		Columns("subject", "kind", "nats_msg_id", "published_ts", "recv_epoch_ms", "recv_iso",
			"message_type", "sensor_id", "day", "time_s", "payload", "headers", "tspi_extracts", "cbor").
		Values(rec.Subject, rec.Kind, rec.NatsMsgID, rec.PublishedTS, recvEpochMS, rec.RecvISO,
			rec.MessageType, sensorID, day, timeS, rec.Payload, rec.Headers, rec.TSPIExtracts, rec.CBOR).
		Suffix("ON CONFLICT(nats_msg_id) DO NOTHING").
		RunWith(s.stmtCache).
		ExecContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("store: insert message failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("store: read rows affected failed: %w", err)
	}
	if affected == 0 {
		// Already present: idempotent no-op, not an error.
		var existingID int64
		err := sq.Select("id").From("messages").Where(sq.Eq{"nats_msg_id": rec.NatsMsgID}).
			RunWith(s.stmtCache).QueryRowContext(ctx).Scan(&existingID)
		if err != nil {
			return 0, false, fmt.Errorf("store: lookup existing message failed: %w", err)
		}
		return existingID, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("store: read last insert id failed: %w", err)
	}
	return id, true, nil
}

func (s *SQLStore) UpsertCommand(ctx context.Context, cmd CommandRecord) error {
	_, err := sq.Insert("commands").
		Columns("cmd_id", "name", "ts", "sender", "units", "payload", "published_ts", "message_id").
		Values(cmd.CmdID, cmd.Name, cmd.TS, cmd.Sender, cmd.Units, cmd.Payload, cmd.PublishedTS, cmd.MessageID).
		Suffix(`ON CONFLICT(cmd_id) DO UPDATE SET
			name=excluded.name, ts=excluded.ts, sender=excluded.sender, units=excluded.units,
			payload=excluded.payload, published_ts=excluded.published_ts, message_id=excluded.message_id`).
		RunWith(s.stmtCache).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: upsert command %q failed: %w", cmd.CmdID, err)
	}
	return nil
}

func (s *SQLStore) ApplyTagEvent(ctx context.Context, tag TagRecord) error {
	_, err := sq.Insert("tags").
		Columns("id", "ts", "creator", "label", "category", "notes", "extra", "status", "updated_ts", "message_id").
		Values(tag.ID, tag.TS, tag.Creator, tag.Label, tag.Category, tag.Notes, tag.Extra, tag.Status, tag.UpdatedTS, tag.MessageID).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			label=excluded.label, category=excluded.category, notes=excluded.notes, extra=excluded.extra,
			status=excluded.status, updated_ts=excluded.updated_ts, message_id=excluded.message_id
			WHERE excluded.updated_ts >= tags.updated_ts`).
		RunWith(s.stmtCache).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: apply tag event %q failed: %w", tag.ID, err)
	}
	return nil
}

func (s *SQLStore) withinRetentionHorizon(start time.Time) error {
	if !s.retentionHorizon.Valid {
		return nil
	}
	if start.Before(s.retentionHorizon.Time) {
		return ErrRetentionHorizon
	}
	return nil
}

func (s *SQLStore) FetchMessagesBetween(ctx context.Context, start, end time.Time) ([]MessageRecord, error) {
	if err := s.withinRetentionHorizon(start); err != nil {
		return nil, err
	}

	rows, err := sq.Select("id", "subject", "kind", "nats_msg_id", "published_ts", "recv_epoch_ms", "recv_iso",
		"message_type", "sensor_id", "day", "time_s", "payload", "headers", "tspi_extracts", "cbor").
		From("messages").
		Where(sq.And{sq.GtOrEq{"published_ts": start}, sq.LtOrEq{"published_ts": end}}).
		OrderBy("published_ts ASC", "id ASC").
		RunWith(s.stmtCache).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: fetch messages between failed: %w", err)
	}
	defer rows.Close()

	return scanMessageRows(rows)
}

func (s *SQLStore) FetchMessagesForTag(ctx context.Context, tagID string, windowSeconds float64) ([]MessageRecord, error) {
	tag, err := s.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, fmt.Errorf("store: unknown tag %q", tagID)
	}

	half := time.Duration(windowSeconds/2*float64(time.Second))
	return s.FetchMessagesBetween(ctx, tag.TS.Add(-half), tag.TS.Add(half))
}

func (s *SQLStore) LatestCommand(ctx context.Context, name string) (*CommandRecord, error) {
	var cmd CommandRecord
	row := sq.Select("cmd_id", "name", "ts", "sender", "units", "payload", "published_ts", "message_id").
		From("commands").
		Where(sq.Eq{"name": name}).
		OrderBy("ts DESC").
		Limit(1).
		RunWith(s.stmtCache).
		QueryRowContext(ctx)

	var units sql.NullString
	if err := row.Scan(&cmd.CmdID, &cmd.Name, &cmd.TS, &cmd.Sender, &units, &cmd.Payload, &cmd.PublishedTS, &cmd.MessageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest command %q failed: %w", name, err)
	}
	cmd.Units = units.String
	return &cmd, nil
}

func (s *SQLStore) GetTag(ctx context.Context, id string) (*TagRecord, error) {
	var tag TagRecord
	var creator, category, notes sql.NullString
	row := sq.Select("id", "ts", "creator", "label", "category", "notes", "extra", "status", "updated_ts", "message_id").
		From("tags").
		Where(sq.Eq{"id": id}).
		RunWith(s.stmtCache).
		QueryRowContext(ctx)

	if err := row.Scan(&tag.ID, &tag.TS, &creator, &tag.Label, &category, &notes, &tag.Extra, &tag.Status, &tag.UpdatedTS, &tag.MessageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get tag %q failed: %w", id, err)
	}
	tag.Creator = creator.String
	tag.Category = category.String
	tag.Notes = notes.String
	return &tag, nil
}

func (s *SQLStore) ListTags(ctx context.Context, includeDeleted bool) ([]TagRecord, error) {
	q := sq.Select("id", "ts", "creator", "label", "category", "notes", "extra", "status", "updated_ts", "message_id").
		From("tags").
		OrderBy("ts ASC")
	if !includeDeleted {
		q = q.Where(sq.NotEq{"status": "deleted"})
	}

	rows, err := q.RunWith(s.stmtCache).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list tags failed: %w", err)
	}
	defer rows.Close()

	var out []TagRecord
	for rows.Next() {
		var tag TagRecord
		var creator, category, notes sql.NullString
		if err := rows.Scan(&tag.ID, &tag.TS, &creator, &tag.Label, &category, &notes, &tag.Extra, &tag.Status, &tag.UpdatedTS, &tag.MessageID); err != nil {
			return nil, fmt.Errorf("store: scan tag failed: %w", err)
		}
		tag.Creator = creator.String
		tag.Category = category.String
		tag.Notes = notes.String
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := sq.Select("count(*)").From("messages").
		RunWith(s.stmtCache).QueryRowContext(ctx).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count messages failed: %w", err)
	}
	return count, nil
}

func scanMessageRows(rows *sql.Rows) ([]MessageRecord, error) {
	var out []MessageRecord
	for rows.Next() {
		var row messageRow
		if err := rows.Scan(&row.ID, &row.Subject, &row.Kind, &row.NatsMsgID, &row.PublishedTS,
			&row.RecvEpochMS, &row.RecvISO, &row.MessageType, &row.SensorID, &row.Day, &row.TimeS,
			&row.Payload, &row.Headers, &row.TSPIExtracts, &row.CBOR); err != nil {
			return nil, fmt.Errorf("store: scan message failed: %w", err)
		}
		out = append(out, row.toRecord())
	}
	return out, rows.Err()
}
