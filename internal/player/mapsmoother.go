// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package player

import "github.com/tspi-telemetry/tspi-pipeline/pkg/tspi"

// mapSmoother exponentially blends successive telemetry positions so map
// widgets don't jump between updates. It is retained across channel
// switches for continuity, as long as the caller reuses the same Engine.
type mapSmoother struct {
	factor     float64
	haveCenter bool
	centerX    float64
	centerY    float64
	zoom       float64
}

func newMapSmoother(factor float64) *mapSmoother {
	if factor <= 0 || factor > 1 {
		factor = 0.2
	}
	return &mapSmoother{factor: factor, zoom: 1.0}
}

func (m *mapSmoother) observe(env *tspi.Envelope) {
	x, okx := env.Payload["x"]
	y, oky := env.Payload["y"]
	if !okx || !oky {
		return
	}
	if !m.haveCenter {
		m.centerX, m.centerY = x, y
		m.haveCenter = true
		return
	}
	m.centerX = blend(m.centerX, x, m.factor)
	m.centerY = blend(m.centerY, y, m.factor)
}

func blend(prev, next, factor float64) float64 {
	return prev + factor*(next-prev)
}

func (m *mapSmoother) center() (x, y float64) { return m.centerX, m.centerY }
