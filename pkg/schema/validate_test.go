// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Config_OK(t *testing.T) {
	raw := `{"nats":{"address":"nats://localhost:4222"},"store-driver":"sqlite3","store-dsn":"./var/tspi.db"}`
	err := Validate(Config, strings.NewReader(raw))
	require.NoError(t, err)
}

func TestValidate_Config_MissingAddress(t *testing.T) {
	raw := `{"nats":{},"store-driver":"sqlite3","store-dsn":"./var/tspi.db"}`
	err := Validate(Config, strings.NewReader(raw))
	assert.Error(t, err)
}

func TestValidateBytes_TelemetryEnvelope(t *testing.T) {
	env := map[string]interface{}{
		"type":      "geocentric",
		"sensor_id": 501,
		"day":       123,
		"time_s":    1.534,
		"status":    255,
		"status_flags": map[string]bool{
			"PositionXValid": true, "PositionYValid": true, "PositionZValid": true,
			"VelocityXValid": false, "VelocityYValid": false, "VelocityZValid": false,
			"AccelerationXValid": false, "AccelerationYValid": false, "AccelerationZValid": false,
		},
		"payload": map[string]float64{
			"x": 1, "y": 2, "z": 3, "vx": 0, "vy": 0, "vz": 0, "ax": 0, "ay": 0, "az": 0,
		},
		"recv_epoch_ms": 1700000000000,
		"recv_iso":      "2023-11-14T22:13:20Z",
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, ValidateBytes(TelemetryEnvelope, data))
}

func TestValidateBytes_TelemetryEnvelope_MissingPayloadField(t *testing.T) {
	env := map[string]interface{}{
		"type":         "geocentric",
		"sensor_id":    501,
		"day":          123,
		"time_s":       1.534,
		"status":       255,
		"status_flags": map[string]bool{
			"PositionXValid": true, "PositionYValid": true, "PositionZValid": true,
			"VelocityXValid": false, "VelocityYValid": false, "VelocityZValid": false,
			"AccelerationXValid": false, "AccelerationYValid": false, "AccelerationZValid": false,
		},
		"payload":      map[string]float64{"x": 1},
		"recv_epoch_ms": 1700000000000,
		"recv_iso":      "2023-11-14T22:13:20Z",
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Error(t, ValidateBytes(TelemetryEnvelope, data))
}
