// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package archiver

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
)

// StartMaintenance registers a gocron job that periodically reports store
// row counts to the metrics registry. It does not block; callers own the
// returned scheduler's lifetime and must call Shutdown when done.
func (a *Archiver) StartMaintenance(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(gocron.DurationJob(interval), gocron.NewTask(func() {
		a.reportRowCounts()
	}))
	if err != nil {
		return nil, err
	}

	s.Start()
	log.Infof("archiver: maintenance job registered with %s interval", interval)
	return s, nil
}

func (a *Archiver) reportRowCounts() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := a.Store.CountMessages(ctx)
	if err != nil {
		log.Warnf("archiver: maintenance row-count query failed: %v", err)
		return
	}
	metrics.StoreRowCount.WithLabelValues("messages").Set(float64(count))

	tags, err := a.Store.ListTags(ctx, true)
	if err != nil {
		log.Warnf("archiver: maintenance tag-count query failed: %v", err)
		return
	}
	metrics.StoreRowCount.WithLabelValues("tags").Set(float64(len(tags)))
}
