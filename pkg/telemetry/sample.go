// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package telemetry defines the Sample record flowing through the pipeline,
// the parse seam that turns raw payloads into Samples, and the rolling
// buffers the detector and calculator are built on.
package telemetry

import (
	"math"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DataSourceReal identifies samples coming from the live vehicle feed.
const DataSourceReal = "ESP32_REAL"

// Sample is one telemetry record, the atomic unit in the pipeline. All
// fields are present once a Sample leaves the Normalizer; missing inputs
// default to zero.
type Sample struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	// Timestamp is a UTC ISO-8601 string at the boundary.
	Timestamp string `json:"timestamp"`

	SpeedMS   float64 `json:"speed_ms"`
	VoltageV  float64 `json:"voltage_v"`
	CurrentA  float64 `json:"current_a"`
	PowerW    float64 `json:"power_w"`
	EnergyJ   float64 `json:"energy_j"`
	DistanceM float64 `json:"distance_m"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`

	GyroX float64 `json:"gyro_x"`
	GyroY float64 `json:"gyro_y"`
	GyroZ float64 `json:"gyro_z"`

	AccelX            float64 `json:"accel_x"`
	AccelY            float64 `json:"accel_y"`
	AccelZ            float64 `json:"accel_z"`
	TotalAcceleration float64 `json:"total_acceleration"`

	MessageID     int64   `json:"message_id"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	ThrottlePct float64 `json:"throttle_pct"`
	BrakePct    float64 `json:"brake_pct"`
	Throttle    float64 `json:"throttle"`
	Brake       float64 `json:"brake"`

	DataSource string `json:"data_source"`

	// Outliers is attached by the Normalizer; nil when the detector found
	// nothing.
	Outliers *OutlierReport `json:"outliers,omitempty"`

	// Derived holds the calculator's additive metric set. It is merged into
	// the flat record at the serialization seam and never inspected by the
	// core.
	Derived map[string]interface{} `json:"-"`
}

// FieldOrder is the canonical column order used by the CSV export.
var FieldOrder = []string{
	"session_id", "session_name", "timestamp",
	"speed_ms", "voltage_v", "current_a", "power_w", "energy_j", "distance_m",
	"latitude", "longitude", "altitude",
	"gyro_x", "gyro_y", "gyro_z",
	"accel_x", "accel_y", "accel_z", "total_acceleration",
	"message_id", "uptime_seconds",
	"throttle_pct", "brake_pct", "throttle", "brake",
	"data_source",
}

// Map flattens the sample into the free-form shape used at the boundaries:
// journal lines, sink messages and database rows all start from it.
func (s *Sample) Map() map[string]interface{} {
	m := map[string]interface{}{
		"session_id":         s.SessionID,
		"session_name":       s.SessionName,
		"timestamp":          s.Timestamp,
		"speed_ms":           s.SpeedMS,
		"voltage_v":          s.VoltageV,
		"current_a":          s.CurrentA,
		"power_w":            s.PowerW,
		"energy_j":           s.EnergyJ,
		"distance_m":         s.DistanceM,
		"latitude":           s.Latitude,
		"longitude":          s.Longitude,
		"altitude":           s.Altitude,
		"gyro_x":             s.GyroX,
		"gyro_y":             s.GyroY,
		"gyro_z":             s.GyroZ,
		"accel_x":            s.AccelX,
		"accel_y":            s.AccelY,
		"accel_z":            s.AccelZ,
		"total_acceleration": s.TotalAcceleration,
		"message_id":         s.MessageID,
		"uptime_seconds":     s.UptimeSeconds,
		"throttle_pct":       s.ThrottlePct,
		"brake_pct":          s.BrakePct,
		"throttle":           s.Throttle,
		"brake":              s.Brake,
		"data_source":        s.DataSource,
	}
	if s.Outliers != nil {
		m["outliers"] = s.Outliers
	}
	for k, v := range s.Derived {
		m[k] = v
	}
	return m
}

// DatabaseRow returns the record shape the remote database expects:
// altitude renamed to altitude_m and outliers serialized as a JSON string.
func (s *Sample) DatabaseRow() map[string]interface{} {
	row := map[string]interface{}{
		"session_id":         s.SessionID,
		"session_name":       s.SessionName,
		"timestamp":          s.Timestamp,
		"speed_ms":           s.SpeedMS,
		"voltage_v":          s.VoltageV,
		"current_a":          s.CurrentA,
		"power_w":            s.PowerW,
		"energy_j":           s.EnergyJ,
		"distance_m":         s.DistanceM,
		"latitude":           s.Latitude,
		"longitude":          s.Longitude,
		"altitude_m":         s.Altitude,
		"gyro_x":             s.GyroX,
		"gyro_y":             s.GyroY,
		"gyro_z":             s.GyroZ,
		"accel_x":            s.AccelX,
		"accel_y":            s.AccelY,
		"accel_z":            s.AccelZ,
		"total_acceleration": s.TotalAcceleration,
		"message_id":         s.MessageID,
		"uptime_seconds":     s.UptimeSeconds,
		"throttle_pct":       s.ThrottlePct,
		"brake_pct":          s.BrakePct,
		"throttle":           s.Throttle,
		"brake":              s.Brake,
		"data_source":        s.DataSource,
	}
	if s.Outliers != nil {
		if b, err := json.Marshal(s.Outliers); err == nil {
			row["outliers"] = string(b)
		}
	}
	return row
}

// Sanitize replaces non-finite floats with zero, in place.
func (s *Sample) Sanitize() {
	for _, f := range []*float64{
		&s.SpeedMS, &s.VoltageV, &s.CurrentA, &s.PowerW, &s.EnergyJ,
		&s.DistanceM, &s.Latitude, &s.Longitude, &s.Altitude,
		&s.GyroX, &s.GyroY, &s.GyroZ,
		&s.AccelX, &s.AccelY, &s.AccelZ, &s.TotalAcceleration,
		&s.UptimeSeconds, &s.ThrottlePct, &s.BrakePct, &s.Throttle, &s.Brake,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
}
