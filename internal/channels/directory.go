// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channels

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/internal/broker"
)

// Directory owns the livestream singleton plus the live sets of group and
// private replay channels. The livestream entry is immortal: it is never
// present in groups/private and is always synthesised on read.
type Directory struct {
	mu            sync.RWMutex
	subjectPrefix string

	groups      map[string]*Descriptor
	groupOrder  []string // insertion order, for "stop most recent" semantics
	private     map[string]*Descriptor
}

// NewDirectory constructs an empty directory. subjectPrefix defaults to
// "tspi" when empty.
func NewDirectory(subjectPrefix string) *Directory {
	if subjectPrefix == "" {
		subjectPrefix = "tspi"
	}
	return &Directory{
		subjectPrefix: subjectPrefix,
		groups:        make(map[string]*Descriptor),
		private:       make(map[string]*Descriptor),
	}
}

// Livestream returns the always-present livestream descriptor.
func (d *Directory) Livestream() Descriptor {
	return livestreamDescriptor(d.subjectPrefix)
}

// StartGroupReplay creates (or replaces) a group replay channel keyed by
// the suffix deterministically derived from identifier.
func (d *Directory) StartGroupReplay(identifier, stream, displayName string) (Descriptor, error) {
	derived, err := deriveGroupReplayIdentifier(identifier)
	if err != nil {
		return Descriptor{}, err
	}
	if strings.TrimSpace(stream) == "" {
		return Descriptor{}, &ValidationError{Reason: "group replay requires a non-empty stream"}
	}

	if displayName == "" {
		displayName = derived.DefaultDisplay
	}

	desc := &Descriptor{
		ChannelID:   "replay." + derived.Suffix,
		Subject:     fmt.Sprintf("%s.channel.replay.%s", d.subjectPrefix, derived.Suffix),
		DisplayName: displayName,
		Kind:        KindGroupReplay,
		Stream:      stream,
		Identifier:  derived.Identifier,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.groups[desc.ChannelID]; !exists {
		d.groupOrder = append(d.groupOrder, desc.ChannelID)
	}
	d.groups[desc.ChannelID] = desc
	return *desc, nil
}

// StopGroupReplay removes the named channel, or the most recently started
// one if channelID is empty. Stopping an unknown channel is a no-op.
func (d *Directory) StopGroupReplay(channelID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if channelID == "" {
		if len(d.groupOrder) == 0 {
			return nil
		}
		channelID = d.groupOrder[len(d.groupOrder)-1]
	}

	if _, ok := d.groups[channelID]; !ok {
		return nil
	}
	delete(d.groups, channelID)
	for i, id := range d.groupOrder {
		if id == channelID {
			d.groupOrder = append(d.groupOrder[:i], d.groupOrder[i+1:]...)
			break
		}
	}
	return nil
}

// StartPrivateReplay creates a per-client replay channel. Both clientID and
// sessionID must be non-empty after trimming.
func (d *Directory) StartPrivateReplay(clientID, sessionID, stream string) (Descriptor, error) {
	clientID = strings.TrimSpace(clientID)
	sessionID = strings.TrimSpace(sessionID)
	if clientID == "" || sessionID == "" {
		return Descriptor{}, &ValidationError{Reason: "private replay requires non-empty client_id and session_id"}
	}

	channelID := fmt.Sprintf("client.%s.%s", clientID, sessionID)
	desc := &Descriptor{
		ChannelID:   channelID,
		Subject:     fmt.Sprintf("%s.channel.%s", d.subjectPrefix, channelID),
		DisplayName: channelID,
		Kind:        KindPrivateReplay,
		Stream:      stream,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.private[channelID] = desc
	return *desc, nil
}

// StopPrivateReplay removes a private replay channel; unknown ids are a
// no-op.
func (d *Directory) StopPrivateReplay(channelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.private, channelID)
}

// List returns descriptors in the canonical enumeration order: livestream
// first, then group replays sorted by channel id, then private replays (if
// requested) sorted by channel id.
func (d *Directory) List(includePrivate bool) []Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []Descriptor{d.Livestream()}

	groupIDs := make([]string, 0, len(d.groups))
	for id := range d.groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)
	for _, id := range groupIDs {
		out = append(out, *d.groups[id])
	}

	if includePrivate {
		privateIDs := make([]string, 0, len(d.private))
		for id := range d.private {
			privateIDs = append(privateIDs, id)
		}
		sort.Strings(privateIDs)
		for _, id := range privateIDs {
			out = append(out, *d.private[id])
		}
	}
	return out
}

// ToDicts projects the directory into the wire format used by discovery
// endpoints.
func (d *Directory) ToDicts(includePrivate bool) []map[string]any {
	descs := d.List(includePrivate)
	out := make([]map[string]any, 0, len(descs))
	for _, desc := range descs {
		entry := map[string]any{
			"channel_id":   desc.ChannelID,
			"subject":      desc.Subject,
			"display_name": desc.DisplayName,
			"kind":         string(desc.Kind),
		}
		if desc.Stream != "" {
			entry["stream"] = desc.Stream
		}
		if desc.Identifier != "" {
			entry["identifier"] = desc.Identifier
		}
		out = append(out, entry)
	}
	return out
}

// ConsumerConfigFor returns the broker consumer configuration implied by a
// channel's kind and identifier shape, per the delivery-policy table.
func ConsumerConfigFor(desc Descriptor, subjectFilter string) broker.ConsumerConfig {
	cfg := broker.ConsumerConfig{SubjectFilter: subjectFilter}

	switch desc.Kind {
	case KindLivestream:
		cfg.DeliverPolicy = broker.DeliverNew
		cfg.FlowControl = true
		cfg.IdleHeartbeat = 5 * time.Second
	case KindGroupReplay:
		cfg.ReplayOriginal = true
		if _, isISO := parseTimestamp(desc.Identifier); isISO {
			cfg.DeliverPolicy = broker.DeliverByStartTime
			cfg.StartTime, _ = parseTimestamp(desc.Identifier)
			cfg.FlowControl = true
			cfg.IdleHeartbeat = 5 * time.Second
		} else {
			cfg.DeliverPolicy = broker.DeliverNew
		}
	case KindPrivateReplay:
		cfg.DeliverPolicy = broker.DeliverNew
		cfg.ReplayOriginal = true
		cfg.InactiveThreshold = 120 * time.Second
	}
	return cfg
}
