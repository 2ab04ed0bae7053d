// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tspi-producer reads TSPI datagrams from a source file and
// publishes them onto the broker at a configurable rate.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/bootstrap"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	"github.com/tspi-telemetry/tspi-pipeline/internal/producer"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

var (
	flagHeadless      bool
	flagConfigFile    string
	flagLogLevel      string
	flagDuration      time.Duration
	flagRate          float64
	flagJSStream      string
	flagSubjectPrefix string
	flagSource        string
	flagNatsServers   bootstrap.StringSlice
)

func cliInit() {
	flag.BoolVar(&flagHeadless, "headless", false, "Run without interactive prompts; required params must be complete")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to config.json")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Logging level: debug, info, warn, err, crit")
	flag.DurationVar(&flagDuration, "duration", 0, "Stop after this long (0 = run until signalled)")
	flag.Float64Var(&flagRate, "rate", 10, "Datagrams per second to publish")
	flag.StringVar(&flagJSStream, "js-stream", "", "Override the configured stream name")
	flag.StringVar(&flagSubjectPrefix, "subject-prefix", "", "Override the configured subject prefix")
	flag.StringVar(&flagSource, "source", "", "Path to a file of back-to-back 37-byte TSPI datagrams")
	flag.Var(&flagNatsServers, "nats-server", "NATS server URL (repeatable)")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("tspi-producer: config init failed: %v", err)
	}
	if flagSubjectPrefix != "" {
		config.Keys.SubjectPrefix = flagSubjectPrefix
	}

	if flagHeadless && flagSource == "" {
		log.Error("tspi-producer: --headless requires --source")
		os.Exit(1)
	}

	b, client, err := bootstrap.Broker(flagNatsServers)
	if err != nil {
		log.Fatalf("tspi-producer: %v", err)
	}
	defer client.Close()

	p := producer.New(b, config.Keys.SubjectPrefix, nil)

	if flagSource == "" {
		log.Info("tspi-producer: no --source given, idling")
		waitForSignal()
		return
	}

	data, err := os.ReadFile(flagSource)
	if err != nil {
		log.Fatalf("tspi-producer: read %q failed: %v", flagSource, err)
	}
	if len(data)%37 != 0 {
		log.Warnf("tspi-producer: %q length %d is not a multiple of 37, trailing bytes ignored", flagSource, len(data))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if flagDuration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, flagDuration)
		defer durationCancel()
	}

	interval := time.Second
	if flagRate > 0 {
		interval = time.Duration(float64(time.Second) / flagRate)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	published := 0
	frameCount := len(data) / 37
	for i := 0; frameCount > 0; i = (i + 1) % frameCount {
		select {
		case <-ctx.Done():
			log.Infof("tspi-producer: published %d datagrams, exiting", published)
			return
		case <-sigCh:
			log.Infof("tspi-producer: signalled, published %d datagrams, exiting", published)
			return
		case <-ticker.C:
			frame := data[i*37 : i*37+37]
			ok, err := p.Publish(ctx, frame, nil)
			if err != nil {
				log.Warnf("tspi-producer: publish failed: %v", err)
				continue
			}
			if ok {
				published++
			}
		}
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
