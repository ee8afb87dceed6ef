// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package telemetry

import (
	"encoding/binary"
	"errors"
	"math"
)

// BinaryMessageSize is the exact payload length of the fixed little-endian
// frame the vehicle firmware emits: 6 float32 followed by a uint32 counter.
const BinaryMessageSize = 28

// ErrUnparseable is returned when a payload is neither valid JSON nor a
// well-formed binary frame.
var ErrUnparseable = errors.New("telemetry: unparseable payload")

// ErrMissingCoreFields is returned when a parsed message carries none of
// speed_ms, voltage_v, current_a.
var ErrMissingCoreFields = errors.New("telemetry: message has no core field")

// coreFields is the presence requirement for a valid inbound message.
var coreFields = []string{"speed_ms", "voltage_v", "current_a"}

// ParseJSON decodes a JSON payload into a Sample. Presence of at least one
// core field is required; non-finite floats are coerced to zero.
func ParseJSON(payload []byte) (*Sample, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrUnparseable
	}
	return FromRaw(raw)
}

// FromRaw converts the free-form shape of the parse seam into a Sample.
func FromRaw(raw map[string]interface{}) (*Sample, error) {
	ok := false
	for _, f := range coreFields {
		if _, present := raw[f]; present {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ErrMissingCoreFields
	}

	// Round-trip through the struct tags; values of the wrong type are
	// dropped rather than failing the whole message.
	s := &Sample{}
	if b, err := json.Marshal(raw); err == nil {
		_ = json.Unmarshal(b, s)
	}
	s.Sanitize()
	return s, nil
}

// ParseBinary decodes the 28-byte little-endian frame. power_w is derived
// from voltage and current on decode.
func ParseBinary(payload []byte) (*Sample, error) {
	if len(payload) != BinaryMessageSize {
		return nil, ErrUnparseable
	}
	f := func(off int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off:])))
	}
	s := &Sample{
		SpeedMS:   f(0),
		VoltageV:  f(4),
		CurrentA:  f(8),
		Latitude:  f(12),
		Longitude: f(16),
		Altitude:  f(20),
		MessageID: int64(binary.LittleEndian.Uint32(payload[24:])),
	}
	s.PowerW = s.VoltageV * s.CurrentA
	s.Sanitize()
	return s, nil
}

// Parse decodes a raw payload, trying JSON first and falling back to the
// binary frame when the length matches.
func Parse(payload []byte) (*Sample, error) {
	if s, err := ParseJSON(payload); err == nil {
		return s, nil
	} else if err == ErrMissingCoreFields {
		return nil, err
	}
	if len(payload) == BinaryMessageSize {
		return ParseBinary(payload)
	}
	return nil, ErrUnparseable
}
