// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package replayer implements C7: pacing archived store records back onto
// the broker under a room-scoped playout subject.
package replayer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/store"
)

// ReplayOriginHeader marks a message as having been republished from the
// store rather than observed live.
const ReplayOriginHeader = "X-Replay-Origin"

// Replayer paces store.MessageRecord rows back onto the broker.
type Replayer struct {
	Broker broker.Broker
	Store  store.Store

	// Sleep is injectable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// New constructs a Replayer.
func New(b broker.Broker, s store.Store) *Replayer {
	metrics.Register()
	return &Replayer{Broker: b, Store: s, Sleep: time.Sleep}
}

// playoutSubject prefixes "player.<room>.playout." onto the original
// subject's tail (everything after the first dot).
func playoutSubject(room, originalSubject string) string {
	tail := originalSubject
	if idx := strings.IndexByte(originalSubject, '.'); idx >= 0 {
		tail = originalSubject[idx+1:]
	}
	return fmt.Sprintf("player.%s.playout.%s", room, tail)
}

// replayDedupID rewrites a dedup id for replay, optionally disambiguating
// by record id when uniqueness across concurrent replays matters.
func replayDedupID(original, room string, recordID int64, disambiguate bool) string {
	if disambiguate {
		return fmt.Sprintf("%s:replay:%s:%d", original, room, recordID)
	}
	return fmt.Sprintf("%s:replay:%s", original, room)
}

func delayBetween(prev, cur store.MessageRecord) time.Duration {
	if prev.RecvEpochMS != nil && cur.RecvEpochMS != nil {
		d := *cur.RecvEpochMS - *prev.RecvEpochMS
		if d < 0 {
			d = 0
		}
		return time.Duration(d) * time.Millisecond
	}
	if prev.TimeS != nil && cur.TimeS != nil {
		d := *cur.TimeS - *prev.TimeS
		if d < 0 {
			d = 0
		}
		return time.Duration(d * float64(time.Second))
	}
	return 0
}

func (r *Replayer) publishRecord(ctx context.Context, room string, rec store.MessageRecord, disambiguate bool) error {
	var headers map[string]string
	if len(rec.Headers) > 0 {
		headers = decodeHeaders(rec.Headers)
	}
	if headers == nil {
		headers = make(map[string]string)
	}
	headers[broker.MsgIDHeader] = replayDedupID(rec.NatsMsgID, room, rec.ID, disambiguate)
	headers[ReplayOriginHeader] = "datastore"

	subject := playoutSubject(room, rec.Subject)
	_, err := r.Broker.Publish(ctx, subject, rec.CBOR, headers, time.Now())
	return err
}

// ReplayTimeWindow fetches records in [start, end] and republishes them
// under player.<room>.playout.<tail>, optionally pacing by inter-record
// delay.
func (r *Replayer) ReplayTimeWindow(ctx context.Context, room string, start, end time.Time, pace bool) error {
	records, err := r.Store.FetchMessagesBetween(ctx, start, end)
	if err != nil {
		return err
	}

	var prev *store.MessageRecord
	for i := range records {
		rec := records[i]
		if pace && prev != nil {
			delay := delayBetween(*prev, rec)
			if delay > 0 {
				r.Sleep(delay)
			}
			metrics.ReplayerPaceSeconds.Observe(delay.Seconds())
		}
		if err := r.publishRecord(ctx, room, rec, true); err != nil {
			return err
		}
		metrics.ReplayerRecordsPublished.WithLabelValues(room).Inc()
		prev = &rec

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	log.Infof("replayer: replayed %d records for room %q", len(records), room)
	return nil
}

// ReplayTag centres a ±windowS/2 window on tagID's timestamp and replays
// it as a time window.
func (r *Replayer) ReplayTag(ctx context.Context, room, tagID string, windowS float64, pace bool) error {
	tag, err := r.Store.GetTag(ctx, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return fmt.Errorf("replayer: unknown tag %q", tagID)
	}

	half := time.Duration(windowS / 2 * float64(time.Second))
	return r.ReplayTimeWindow(ctx, room, tag.TS.Add(-half), tag.TS.Add(half), pace)
}

func decodeHeaders(data []byte) map[string]string {
	headers := make(map[string]string)
	if err := json.Unmarshal(data, &headers); err != nil {
		log.Warnf("replayer: decode headers failed: %v", err)
		return nil
	}
	return headers
}
