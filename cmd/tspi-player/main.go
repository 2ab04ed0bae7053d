// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tspi-player runs the headless player state engine against the
// livestream channel, stepping the timeline at a fixed tick rate.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/bootstrap"
	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	"github.com/tspi-telemetry/tspi-pipeline/internal/player"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/metrics"
)

var (
	flagHeadless     bool
	flagConfigFile   string
	flagLogLevel     string
	flagDuration     time.Duration
	flagChannel      string
	flagRoom         string
	flagBatchSize    int
	flagMetricsAddr  string
	flagNatsServers  bootstrap.StringSlice
)

const tickInterval = 50 * time.Millisecond

func cliInit() {
	flag.BoolVar(&flagHeadless, "headless", false, "Run without interactive prompts; required params must be complete")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to config.json")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Logging level: debug, info, warn, err, crit")
	flag.DurationVar(&flagDuration, "duration", 0, "Stop after this long (0 = run until signalled)")
	flag.StringVar(&flagChannel, "channel", "live", "Channel id to open on startup (live, historical, or a group-replay room)")
	flag.StringVar(&flagRoom, "room", "", "Group-replay room subject, when --channel names one")
	flag.IntVar(&flagBatchSize, "batch-size", 0, "Pull batch size (0 = use config default)")
	flag.StringVar(&flagMetricsAddr, "metrics-addr", ":9091", "Address to serve /metrics on (empty disables)")
	flag.Var(&flagNatsServers, "nats-server", "NATS server URL (repeatable)")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("tspi-player: config init failed: %v", err)
	}

	if flagHeadless && flagChannel == "" {
		log.Error("tspi-player: --headless requires --channel")
		os.Exit(1)
	}

	b, client, err := bootstrap.Broker(flagNatsServers)
	if err != nil {
		log.Fatalf("tspi-player: %v", err)
	}
	defer client.Close()

	batchSize := flagBatchSize
	if batchSize <= 0 {
		batchSize = config.Keys.BatchSize
	}

	factories := map[string]player.ReceiverFactory{
		"live": func(channelID string) (player.Receiver, error) {
			return consumerReceiver(b, "tspi.>", "player-live", batchSize)
		},
		"historical": func(channelID string) (player.Receiver, error) {
			return consumerReceiver(b, "player.default.playout.>", "player-historical", batchSize)
		},
	}
	if flagRoom != "" {
		factories[flagRoom] = func(channelID string) (player.Receiver, error) {
			return consumerReceiver(b, "player."+flagRoom+".playout.>", "player-"+flagRoom, batchSize)
		}
	}

	eng := player.New(factories, config.Keys.ScrubHistorySize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.SwitchChannel(ctx, flagChannel); err != nil {
		log.Fatalf("tspi-player: switch to channel %q failed: %v", flagChannel, err)
	}

	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("tspi-player: metrics server stopped: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("tspi-player: metrics listening on %s", flagMetricsAddr)
	}

	if flagDuration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, flagDuration)
		defer durationCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("tspi-player: stopped at position %d", eng.Position())
			return
		case <-sigCh:
			log.Infof("tspi-player: signalled, stopped at position %d", eng.Position())
			return
		case <-ticker.C:
			if err := eng.Preload(ctx); err != nil {
				log.Warnf("tspi-player: preload failed: %v", err)
			}
			eng.StepOnce()
			eng.EmitMetrics()
		}
	}
}

func consumerReceiver(b broker.Broker, subjectFilter, durable string, batchSize int) (player.Receiver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrap.ConnectDeadline)
	defer cancel()

	consumer, err := b.CreatePullConsumer(ctx, config.Keys.StreamName, broker.ConsumerConfig{
		Durable:       durable,
		SubjectFilter: subjectFilter,
	})
	if err != nil {
		return nil, err
	}
	return player.NewBrokerReceiver(consumer, batchSize), nil
}
