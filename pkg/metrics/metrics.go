// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the pipeline's Prometheus collectors: archiver
// drain counts, replayer pacing, player lag/position gauges and producer
// publish outcomes. Collectors are registered once against a dedicated
// registry (never the global default) so repeated construction in tests
// never panics on a duplicate registration.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registerOnce sync.Once

var registry = prometheus.NewRegistry()

var (
	// MessagesArchived counts store rows persisted by the archiver, by
	// kind (telemetry, command, tag).
	MessagesArchived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tspi",
		Subsystem: "archiver",
		Name:      "messages_archived_total",
		Help:      "Messages newly persisted by the archiver, by kind.",
	}, []string{"kind"})

	// ArchiverDrainDuration observes the wall time of one Drain pass.
	ArchiverDrainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tspi",
		Subsystem: "archiver",
		Name:      "drain_duration_seconds",
		Help:      "Time spent in one archiver Drain pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// StoreRowCount reports the archiver's periodic row-count maintenance
	// job, by table.
	StoreRowCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tspi",
		Subsystem: "archiver",
		Name:      "store_row_count",
		Help:      "Row count observed by the scheduled store maintenance job.",
	}, []string{"table"})

	// ReplayerPaceSeconds observes each inter-record pacing sleep.
	ReplayerPaceSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tspi",
		Subsystem: "replayer",
		Name:      "pace_seconds",
		Help:      "Duration of each pacing sleep between replayed records.",
		Buckets:   []float64{0, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// ReplayerRecordsPublished counts records republished per room.
	ReplayerRecordsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tspi",
		Subsystem: "replayer",
		Name:      "records_published_total",
		Help:      "Records republished onto playout subjects, by room.",
	}, []string{"room"})

	// PlayerLag reports the active receiver's pending count, by channel.
	PlayerLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tspi",
		Subsystem: "player",
		Name:      "consumer_lag",
		Help:      "Broker consumer pending count for the player's active channel.",
	}, []string{"channel"})

	// PlayerPosition reports the player's cursor position, by channel.
	PlayerPosition = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tspi",
		Subsystem: "player",
		Name:      "timeline_position",
		Help:      "Player timeline cursor position, by channel.",
	}, []string{"channel"})

	// ProducerPublished counts producer publish outcomes (published vs
	// deduped vs dropped-by-allowlist vs decode error).
	ProducerPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tspi",
		Subsystem: "producer",
		Name:      "publish_total",
		Help:      "Producer publish attempts, by outcome.",
	}, []string{"outcome"})
)

// Register installs every collector exactly once. Safe to call from
// multiple binaries/tests.
func Register() {
	registerOnce.Do(func() {
		registry.MustRegister(
			MessagesArchived,
			ArchiverDrainDuration,
			StoreRowCount,
			ReplayerPaceSeconds,
			ReplayerRecordsPublished,
			PlayerLag,
			PlayerPosition,
			ProducerPublished,
		)
	})
}

// Handler returns the HTTP handler serving the registry in the
// Prometheus exposition format.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
