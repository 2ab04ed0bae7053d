// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tspi-replayer republishes archived messages into a private
// group-replay room, paced either by a time window or centred on a tag.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/bootstrap"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	"github.com/tspi-telemetry/tspi-pipeline/internal/replayer"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

var (
	flagHeadless    bool
	flagConfigFile  string
	flagLogLevel    string
	flagRoom        string
	flagStart       string
	flagEnd         string
	flagTag         string
	flagWindowS     float64
	flagPace        bool
	flagNatsServers bootstrap.StringSlice
)

func cliInit() {
	flag.BoolVar(&flagHeadless, "headless", false, "Run without interactive prompts; required params must be complete")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to config.json")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Logging level: debug, info, warn, err, crit")
	flag.StringVar(&flagRoom, "room", "", "Group-replay room id to publish into (required)")
	flag.StringVar(&flagStart, "start", "", "RFC3339 start of a time-window replay")
	flag.StringVar(&flagEnd, "end", "", "RFC3339 end of a time-window replay")
	flag.StringVar(&flagTag, "tag", "", "Tag id to centre a tag replay on, instead of --start/--end")
	flag.Float64Var(&flagWindowS, "window-s", 30, "Window width in seconds centred on --tag (half on each side)")
	flag.BoolVar(&flagPace, "pace", true, "Sleep between publishes to reproduce original timing")
	flag.Var(&flagNatsServers, "nats-server", "NATS server URL (repeatable)")
	flag.Parse()
}

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("tspi-replayer: config init failed: %v", err)
	}

	if flagRoom == "" {
		log.Error("tspi-replayer: --room is required")
		os.Exit(1)
	}
	if flagTag == "" && (flagStart == "" || flagEnd == "") {
		log.Error("tspi-replayer: either --tag or both --start and --end are required")
		os.Exit(1)
	}

	b, client, err := bootstrap.Broker(flagNatsServers)
	if err != nil {
		log.Fatalf("tspi-replayer: %v", err)
	}
	defer client.Close()

	s, err := bootstrap.Store()
	if err != nil {
		log.Fatalf("tspi-replayer: %v", err)
	}

	r := replayer.New(b, s)
	ctx := context.Background()

	if flagTag != "" {
		if err := r.ReplayTag(ctx, flagRoom, flagTag, flagWindowS, flagPace); err != nil {
			log.Fatalf("tspi-replayer: tag replay failed: %v", err)
		}
		log.Infof("tspi-replayer: tag replay of %q into room %q complete", flagTag, flagRoom)
		return
	}

	start, err := time.Parse(time.RFC3339, flagStart)
	if err != nil {
		log.Fatalf("tspi-replayer: invalid --start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, flagEnd)
	if err != nil {
		log.Fatalf("tspi-replayer: invalid --end: %v", err)
	}

	if err := r.ReplayTimeWindow(ctx, flagRoom, start, end, flagPace); err != nil {
		log.Fatalf("tspi-replayer: time-window replay failed: %v", err)
	}
	log.Infof("tspi-replayer: time-window replay [%s, %s] into room %q complete", start, end, flagRoom)
}
