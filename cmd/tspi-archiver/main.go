// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tspi-archiver drains broker traffic into the durable store and
// serves a Prometheus /metrics endpoint alongside the drain loop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/archiver"
	"github.com/tspi-telemetry/tspi-pipeline/internal/bootstrap"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
)

var (
	flagHeadless          bool
	flagConfigFile        string
	flagLogLevel          string
	flagDuration          time.Duration
	flagBatchSize         int
	flagDrainInterval     time.Duration
	flagMaintenanceEvery  time.Duration
	flagMetricsAddr       string
	flagNatsServers       bootstrap.StringSlice
)

func cliInit() {
	flag.BoolVar(&flagHeadless, "headless", false, "Run without interactive prompts; required params must be complete")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to config.json")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Logging level: debug, info, warn, err, crit")
	flag.DurationVar(&flagDuration, "duration", 0, "Stop after this long (0 = run until signalled)")
	flag.IntVar(&flagBatchSize, "batch-size", 0, "Pull batch size per consumer (0 = use config default)")
	flag.DurationVar(&flagDrainInterval, "drain-interval", 500*time.Millisecond, "Time between drain passes")
	flag.DurationVar(&flagMaintenanceEvery, "metrics-interval", 2*time.Minute, "Row-count maintenance job interval")
	flag.StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on (empty disables)")
	flag.Var(&flagNatsServers, "nats-server", "NATS server URL (repeatable)")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("tspi-archiver: config init failed: %v", err)
	}

	b, client, err := bootstrap.Broker(flagNatsServers)
	if err != nil {
		log.Fatalf("tspi-archiver: %v", err)
	}
	defer client.Close()

	s, err := bootstrap.Store()
	if err != nil {
		log.Fatalf("tspi-archiver: %v", err)
	}

	batchSize := flagBatchSize
	if batchSize <= 0 {
		batchSize = config.Keys.BatchSize
	}
	a := archiver.New(b, s, batchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.EnsureConsumers(ctx); err != nil {
		log.Fatalf("tspi-archiver: ensure consumers failed: %v", err)
	}

	scheduler, err := a.StartMaintenance(flagMaintenanceEvery)
	if err != nil {
		log.Fatalf("tspi-archiver: maintenance job failed to start: %v", err)
	}
	defer scheduler.Shutdown()

	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("tspi-archiver: metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("tspi-archiver: metrics listening on %s", flagMetricsAddr)
	}

	if flagDuration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, flagDuration)
		defer durationCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(flagDrainInterval)
	defer ticker.Stop()

	total := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("tspi-archiver: archived %d records total, exiting", total)
			return
		case <-sigCh:
			log.Infof("tspi-archiver: signalled, archived %d records total, exiting", total)
			return
		case <-ticker.C:
			n, err := a.Drain(ctx)
			if err != nil {
				log.Warnf("tspi-archiver: drain failed: %v", err)
				continue
			}
			total += n
		}
	}
}
