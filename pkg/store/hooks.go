// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"time"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

type queryTimingContextKey string

const beginKey queryTimingContextKey = "begin"

// queryTimingHooks satisfies sqlhooks.Hooks, logging query text/args and
// elapsed time at debug level.
type queryTimingHooks struct{}

func (h *queryTimingHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

func (h *queryTimingHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}
