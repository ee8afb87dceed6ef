// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package telemetry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	s, err := ParseJSON([]byte(`{"speed_ms": 12.5, "voltage_v": 48.1, "current_a": 7.2, "message_id": 42}`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, s.SpeedMS)
	assert.Equal(t, 48.1, s.VoltageV)
	assert.Equal(t, int64(42), s.MessageID)
}

func TestParseJSONMissingCoreFields(t *testing.T) {
	_, err := ParseJSON([]byte(`{"latitude": 40.7, "longitude": -74.0}`))
	assert.ErrorIs(t, err, ErrMissingCoreFields)
}

func TestParseJSONOneCoreFieldSuffices(t *testing.T) {
	s, err := ParseJSON([]byte(`{"voltage_v": 47.9}`))
	require.NoError(t, err)
	assert.Equal(t, 47.9, s.VoltageV)
	assert.Zero(t, s.SpeedMS)
}

func TestParseJSONWrongTypesAreDropped(t *testing.T) {
	s, err := ParseJSON([]byte(`{"speed_ms": "fast", "voltage_v": 48.0}`))
	require.NoError(t, err)
	assert.Zero(t, s.SpeedMS)
	assert.Equal(t, 48.0, s.VoltageV)
}

func binaryFrame(speed, voltage, current, lat, lon, alt float32, id uint32) []byte {
	buf := make([]byte, BinaryMessageSize)
	for i, v := range []float32{speed, voltage, current, lat, lon, alt} {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[24:], id)
	return buf
}

func TestParseBinary(t *testing.T) {
	frame := binaryFrame(12.5, 48.0, 7.5, 40.7128, -74.006, 100, 7)
	s, err := ParseBinary(frame)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, s.SpeedMS, 1e-4)
	assert.InDelta(t, 48.0, s.VoltageV, 1e-4)
	assert.InDelta(t, 7.5, s.CurrentA, 1e-4)
	assert.InDelta(t, 40.7128, s.Latitude, 1e-4)
	assert.InDelta(t, -74.006, s.Longitude, 1e-3)
	assert.Equal(t, int64(7), s.MessageID)
	// power derived on decode
	assert.InDelta(t, 360.0, s.PowerW, 0.01)
}

func TestParseBinaryWrongLength(t *testing.T) {
	_, err := ParseBinary(make([]byte, 27))
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseFallsBackToBinary(t *testing.T) {
	frame := binaryFrame(10, 48, 7, 0, 0, 0, 1)
	s, err := Parse(frame)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, s.SpeedMS, 1e-4)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("definitely not telemetry"))
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseMissingCoreDoesNotFallBack(t *testing.T) {
	// Valid JSON without core fields must not be reinterpreted as binary.
	payload := []byte(`{"lat": 1.0, "padpadpadpad": 22}`)
	if len(payload) == BinaryMessageSize {
		t.Fatal("test payload must not match the binary frame size")
	}
	_, err := Parse(payload)
	assert.ErrorIs(t, err, ErrMissingCoreFields)
}

func TestSanitize(t *testing.T) {
	s := &Sample{SpeedMS: math.NaN(), VoltageV: math.Inf(1), CurrentA: math.Inf(-1), PowerW: 5}
	s.Sanitize()
	assert.Zero(t, s.SpeedMS)
	assert.Zero(t, s.VoltageV)
	assert.Zero(t, s.CurrentA)
	assert.Equal(t, 5.0, s.PowerW)
}

func TestSampleMapIncludesDerivedAndOutliers(t *testing.T) {
	s := &Sample{SpeedMS: 10, Derived: map[string]interface{}{"motion_state": "cruising"}}
	s.Outliers = &OutlierReport{
		FlaggedFields: []string{"voltage_v"},
		Severity:      SeverityCritical,
	}
	m := s.Map()
	assert.Equal(t, 10.0, m["speed_ms"])
	assert.Equal(t, "cruising", m["motion_state"])
	assert.Equal(t, s.Outliers, m["outliers"])
}

func TestDatabaseRowShape(t *testing.T) {
	s := &Sample{Altitude: 123.4}
	row := s.DatabaseRow()
	assert.Equal(t, 123.4, row["altitude_m"])
	_, hasAltitude := row["altitude"]
	assert.False(t, hasAltitude)
	_, hasOutliers := row["outliers"]
	assert.False(t, hasOutliers)

	s.Outliers = &OutlierReport{FlaggedFields: []string{"speed_ms"}, Severity: SeverityInfo}
	row = s.DatabaseRow()
	require.Contains(t, row, "outliers")
	assert.IsType(t, "", row["outliers"])
	assert.Contains(t, row["outliers"].(string), "speed_ms")
}
