// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channels

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	identifierLayout = "2006-01-02T15:04:05Z"
	suffixLayout     = "20060102T150405Z"
)

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp attempts to interpret raw as an ISO-ish timestamp or a
// numeric epoch (seconds). ok is false if raw is neither.
func parseTimestamp(raw string) (t time.Time, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}

	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}

	for _, layout := range datetimeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// derivedIdentifier is the result of resolving a caller-supplied group
// replay identifier into its canonical form, channel suffix and default
// display name.
type derivedIdentifier struct {
	Identifier     string
	Suffix         string
	DefaultDisplay string
}

// deriveGroupReplayIdentifier implements the datetime/epoch vs free-form
// label derivation rules: a value that parses as a timestamp gets the
// canonical ISO identifier and a compact suffix; anything else is treated
// as a free-form label and slugified.
func deriveGroupReplayIdentifier(raw string) (derivedIdentifier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return derivedIdentifier{}, &ValidationError{Reason: "group replay identifier must not be empty"}
	}

	if t, ok := parseTimestamp(trimmed); ok {
		identifier := t.Format(identifierLayout)
		return derivedIdentifier{
			Identifier:     identifier,
			Suffix:         t.Format(suffixLayout),
			DefaultDisplay: fmt.Sprintf("replay %s", identifier),
		}, nil
	}

	s := slug.Make(trimmed)
	if s == "" {
		return derivedIdentifier{}, &ValidationError{Reason: "group replay label produced an empty slug"}
	}
	return derivedIdentifier{
		Identifier:     trimmed,
		Suffix:         s,
		DefaultDisplay: trimmed,
	}, nil
}
