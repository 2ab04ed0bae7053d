// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tspi

import (
	"github.com/fxamacker/cbor/v2"
)

// Envelope is the wire representation of a Record published on
// "tspi.{geocentric|spherical}.<sensor_id>", matching the JSON Schema in
// pkg/schema/schemas/telemetry-envelope.schema.json.
type Envelope struct {
	Type        Kind               `cbor:"type" json:"type"`
	SensorID    uint16             `cbor:"sensor_id" json:"sensor_id"`
	Day         uint16             `cbor:"day" json:"day"`
	TimeS       float64            `cbor:"time_s" json:"time_s"`
	Status      uint8              `cbor:"status" json:"status"`
	StatusFlags StatusFlags        `cbor:"status_flags" json:"status_flags"`
	Payload     map[string]float64 `cbor:"payload" json:"payload"`
	RecvEpochMS int64              `cbor:"recv_epoch_ms" json:"recv_epoch_ms"`
	RecvISO     string             `cbor:"recv_iso" json:"recv_iso"`
}

// ToEnvelope projects a Record onto its wire Envelope.
func (r *Record) ToEnvelope() *Envelope {
	e := &Envelope{
		Type:        r.Kind,
		SensorID:    r.SensorID,
		Day:         r.Day,
		TimeS:       r.TimeS,
		Status:      r.Status,
		StatusFlags: r.StatusFlags,
		RecvEpochMS: r.RecvEpochMS,
		RecvISO:     r.RecvISO,
	}
	switch r.Kind {
	case KindGeocentric:
		p := r.Geocentric
		e.Payload = map[string]float64{
			"x": p.X, "y": p.Y, "z": p.Z,
			"vx": p.VX, "vy": p.VY, "vz": p.VZ,
			"ax": p.AX, "ay": p.AY, "az": p.AZ,
		}
	case KindSpherical:
		p := r.Spherical
		e.Payload = map[string]float64{
			"range": p.Range, "azimuth": p.Azimuth, "elevation": p.Elevation,
			"range_rate": p.RangeRate, "azimuth_rate": p.AzimuthRate, "elevation_rate": p.ElevRate,
			"range_accel": p.RangeAccel, "azimuth_accel": p.AzimuthAccel, "elevation_accel": p.ElevAcc,
		}
	}
	return e
}

// MarshalCBOR encodes the record's wire envelope as CBOR, the body
// encoding used for every telemetry message on the broker.
func (r *Record) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(r.ToEnvelope())
}

// DecodeEnvelope decodes a CBOR-encoded telemetry envelope as published by
// the producer or replayed by the store replayer.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
