// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package telemetry

// OutlierSeverity is the whole-sample anomaly label.
type OutlierSeverity string

// Severity levels, ordered.
const (
	SeverityInfo     OutlierSeverity = "info"
	SeverityWarning  OutlierSeverity = "warning"
	SeverityCritical OutlierSeverity = "critical"
)

// OutlierReason is the per-field code explaining why a field was flagged.
type OutlierReason string

// Reason codes emitted by the detector.
const (
	ReasonZScoreExceeded      OutlierReason = "Z_SCORE_EXCEEDED"
	ReasonAbsoluteBound       OutlierReason = "ABSOLUTE_BOUND"
	ReasonSuddenJump          OutlierReason = "SUDDEN_JUMP"
	ReasonStuckSensor         OutlierReason = "STUCK_SENSOR"
	ReasonMagnitudeExceeded   OutlierReason = "MAGNITUDE_EXCEEDED"
	ReasonRateOfChange        OutlierReason = "RATE_OF_CHANGE"
	ReasonGPSSpeedMismatch    OutlierReason = "GPS_SPEED_MISMATCH"
	ReasonImpossibleSpeed     OutlierReason = "IMPOSSIBLE_SPEED"
	ReasonAltitudeRate        OutlierReason = "ALTITUDE_RATE"
	ReasonNegativeValue       OutlierReason = "NEGATIVE_VALUE"
	ReasonNonMonotonic        OutlierReason = "NON_MONOTONIC"
	ReasonImplausibleIncrease OutlierReason = "IMPLAUSIBLE_INCREASE"
)

// OutlierReport is the enrichment the detector attaches to a sample when at
// least one field is flagged.
type OutlierReport struct {
	FlaggedFields []string                 `json:"flagged_fields"`
	Confidence    map[string]float64       `json:"confidence"`
	Reasons       map[string]OutlierReason `json:"reasons"`
	Severity      OutlierSeverity          `json:"severity"`
}

// Flagged reports whether the given field is in the flag set.
func (r *OutlierReport) Flagged(field string) bool {
	for _, f := range r.FlaggedFields {
		if f == field {
			return true
		}
	}
	return false
}
