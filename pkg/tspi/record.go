// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tspi implements the binary Time-Space-Position-Information (TSPI)
// datagram codec: parsing fixed-width 37-byte wire frames into canonical
// records, and encoding canonical records back into wire frames.
package tspi

import (
	"fmt"
	"time"
)

// Kind identifies the payload interpretation of a record.
type Kind string

const (
	KindGeocentric Kind = "geocentric"
	KindSpherical  Kind = "spherical"
)

const (
	typeGeocentric byte = 0xC1
	typeSpherical  byte = 0xC2
	wireVersion    byte = 4

	// FrameSize is the exact length in bytes of a TSPI wire datagram.
	FrameSize = 37

	// DefaultSubjectPrefix is used by BuildSubject when the caller has not
	// configured one explicitly.
	DefaultSubjectPrefix = "tspi"
)

// StatusFlags holds the 9 named booleans carried in the status/status_flags
// header fields, in the fixed order defined by the glossary.
type StatusFlags struct {
	PositionXValid     bool
	PositionYValid     bool
	PositionZValid     bool
	VelocityXValid     bool
	VelocityYValid     bool
	VelocityZValid     bool
	AccelerationXValid bool
	AccelerationYValid bool
	AccelerationZValid bool
}

// decodeStatusFlags unpacks the 24-bit union status<<0 | status_flags<<8
// into named booleans, bit 0 first.
func decodeStatusFlags(raw uint32) StatusFlags {
	bit := func(n uint) bool { return raw&(1<<n) != 0 }
	return StatusFlags{
		PositionXValid:     bit(0),
		PositionYValid:     bit(1),
		PositionZValid:     bit(2),
		VelocityXValid:     bit(3),
		VelocityYValid:     bit(4),
		VelocityZValid:     bit(5),
		AccelerationXValid: bit(6),
		AccelerationYValid: bit(7),
		AccelerationZValid: bit(8),
	}
}

// encodeStatusFlags packs the named booleans back into the 24-bit union.
func encodeStatusFlags(f StatusFlags) uint32 {
	var raw uint32
	set := func(n uint, v bool) {
		if v {
			raw |= 1 << n
		}
	}
	set(0, f.PositionXValid)
	set(1, f.PositionYValid)
	set(2, f.PositionZValid)
	set(3, f.VelocityXValid)
	set(4, f.VelocityYValid)
	set(5, f.VelocityZValid)
	set(6, f.AccelerationXValid)
	set(7, f.AccelerationYValid)
	set(8, f.AccelerationZValid)
	return raw
}

// GeocentricPayload carries position/velocity/acceleration in XYZ, meters
// and SI derivatives.
type GeocentricPayload struct {
	X, Y, Z    float64
	VX, VY, VZ float64
	AX, AY, AZ float64
}

// SphericalPayload carries range/azimuth/elevation plus their rates and
// accelerations.
type SphericalPayload struct {
	Range, Azimuth, Elevation          float64
	RangeRate, AzimuthRate, ElevRate   float64
	RangeAccel, AzimuthAccel, ElevAcc  float64
}

// Record is the canonical decoded form of one TSPI observation.
type Record struct {
	Kind        Kind
	SensorID    uint16
	Day         uint16
	TimeTicks   uint32
	TimeS       float64
	Status      uint8
	StatusFlags StatusFlags

	Geocentric *GeocentricPayload
	Spherical  *SphericalPayload

	RecvEpochMS int64
	RecvISO     string
}

// DedupID returns the (sensor_id, day, time_ticks) deduplication key. It
// depends only on those three fields and is stable under status/flag
// changes, envelope timestamps, or payload type.
func (r *Record) DedupID() string {
	return fmt.Sprintf("%d:%d:%d", r.SensorID, r.Day, r.TimeTicks)
}

// BuildSubject returns the broker routing subject for this record:
// "<prefix>.<kind>.<sensor_id>".
func (r *Record) BuildSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s.%d", prefix, r.Kind, r.SensorID)
}

// StampRecv fills in the envelope fields from a receive timestamp.
func (r *Record) StampRecv(t time.Time) {
	r.RecvEpochMS = t.UnixMilli()
	r.RecvISO = t.UTC().Format(time.RFC3339)
}
