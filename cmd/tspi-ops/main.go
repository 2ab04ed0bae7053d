// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command tspi-ops is the operator control-plane CLI: start/stop group
// replay channels, send display commands, and manage tags.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/bootstrap"
	"github.com/tspi-telemetry/tspi-pipeline/internal/channels"
	"github.com/tspi-telemetry/tspi-pipeline/internal/commandplane"
	"github.com/tspi-telemetry/tspi-pipeline/internal/config"
	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

var (
	flagConfigFile  string
	flagLogLevel    string
	flagSender      string
	flagNatsServers bootstrap.StringSlice
)

func usage() {
	fmt.Fprintln(os.Stderr, `tspi-ops <subcommand> [flags]

Subcommands:
  replay-start  --identifier <id> --stream <name> [--display-name <name>]
  replay-stop   [--channel <id>]
  command       --name <name> [--units <u>] [--payload-json <json>]
  tag-create    --label <label> [--notes <notes>]
  tag-update    --id <id> --label <label> [--notes <notes>]
  tag-delete    --id <id> [--label <label>]`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	sub := os.Args[1]

	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	fs.StringVar(&flagConfigFile, "config", "./config.json", "Path to config.json")
	fs.StringVar(&flagLogLevel, "loglevel", "info", "Logging level: debug, info, warn, err, crit")
	fs.StringVar(&flagSender, "sender", "tspi-ops", "Operator/service identity attached to this action")
	fs.Var(&flagNatsServers, "nats-server", "NATS server URL (repeatable)")

	var (
		identifier  string
		stream      string
		displayName string
		channelID   string
		cmdName     string
		units       string
		payloadJSON string
		tagID       string
		tagLabel    string
		tagNotes    string
	)
	fs.StringVar(&identifier, "identifier", "", "Group replay identifier (ISO timestamp or opaque id)")
	fs.StringVar(&stream, "stream", "", "Store/source stream name backing the replay")
	fs.StringVar(&displayName, "display-name", "", "Human-readable display name")
	fs.StringVar(&channelID, "channel", "", "Channel id (replay-stop sends it as given; empty sends a stop with an empty channel_id)")
	fs.StringVar(&cmdName, "name", "", "Display command name")
	fs.StringVar(&units, "units", "", "Command units payload field")
	fs.StringVar(&payloadJSON, "payload-json", "{}", "Additional command payload, as a JSON object")
	fs.StringVar(&tagID, "id", "", "Tag id")
	fs.StringVar(&tagLabel, "label", "", "Tag label")
	fs.StringVar(&tagNotes, "notes", "", "Tag notes")
	fs.Parse(os.Args[2:])

	log.SetLogLevel(flagLogLevel)
	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("tspi-ops: config init failed: %v", err)
	}

	b, client, err := bootstrap.Broker(flagNatsServers)
	if err != nil {
		log.Fatalf("tspi-ops: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	switch sub {
	case "replay-start":
		if identifier == "" || stream == "" {
			log.Error("tspi-ops: replay-start requires --identifier and --stream")
			os.Exit(1)
		}
		dir := channels.NewDirectory(config.Keys.SubjectPrefix)
		desc, err := dir.StartGroupReplay(identifier, stream, displayName)
		if err != nil {
			log.Fatalf("tspi-ops: replay-start failed: %v", err)
		}
		if err := channels.NewControlSender(b).BroadcastStart(ctx, desc, flagSender); err != nil {
			log.Fatalf("tspi-ops: broadcast start failed: %v", err)
		}
		log.Infof("tspi-ops: started group replay %q (subject %s)", desc.ChannelID, desc.Subject)

	case "replay-stop":
		if err := channels.NewControlSender(b).BroadcastStop(ctx, channelID, flagSender); err != nil {
			log.Fatalf("tspi-ops: broadcast stop failed: %v", err)
		}
		log.Infof("tspi-ops: stopped group replay %q", channelID)

	case "command":
		if cmdName == "" {
			log.Error("tspi-ops: command requires --name")
			os.Exit(1)
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			log.Fatalf("tspi-ops: --payload-json is not valid JSON: %v", err)
		}
		if units != "" {
			payload["units"] = units
		}
		sender := commandplane.NewCommandSender(b, config.Keys.SubjectPrefix)
		if err := sender.Send(ctx, cmdName, flagSender, payload); err != nil {
			log.Fatalf("tspi-ops: command send failed: %v", err)
		}
		log.Infof("tspi-ops: sent command %q", cmdName)

	case "tag-create":
		if tagLabel == "" {
			log.Error("tspi-ops: tag-create requires --label")
			os.Exit(1)
		}
		sender := commandplane.NewTagSender(b)
		id, err := sender.Create(ctx, time.Now(), tagLabel, flagSender, tagNotes, nil)
		if err != nil {
			log.Fatalf("tspi-ops: tag-create failed: %v", err)
		}
		log.Infof("tspi-ops: created tag %q", id)

	case "tag-update":
		if tagID == "" || tagLabel == "" {
			log.Error("tspi-ops: tag-update requires --id and --label")
			os.Exit(1)
		}
		sender := commandplane.NewTagSender(b)
		if err := sender.Update(ctx, tagID, time.Now(), tagLabel, flagSender, tagNotes, nil); err != nil {
			log.Fatalf("tspi-ops: tag-update failed: %v", err)
		}
		log.Infof("tspi-ops: updated tag %q", tagID)

	case "tag-delete":
		if tagID == "" {
			log.Error("tspi-ops: tag-delete requires --id")
			os.Exit(1)
		}
		sender := commandplane.NewTagSender(b)
		if err := sender.Delete(ctx, tagID, time.Now(), tagLabel, flagSender); err != nil {
			log.Fatalf("tspi-ops: tag-delete failed: %v", err)
		}
		log.Infof("tspi-ops: deleted tag %q", tagID)

	default:
		usage()
		os.Exit(1)
	}
}
