// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package pipeline turns parsed telemetry into canonical enriched samples:
// session stamping, field defaulting, anomaly detection and derived metrics.
package pipeline

import (
	"math"
	"time"

	"github.com/ChosF/TelemetryDashboard/pkg/calc"
	"github.com/ChosF/TelemetryDashboard/pkg/outlier"
	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

// Normalizer produces the canonical sample shape. It owns the detector and
// calculator; both are single-writer, so Normalize must be called from one
// goroutine.
type Normalizer struct {
	sessionID   string
	sessionName string

	detector   *outlier.Detector
	calculator *calc.Calculator
}

// NewNormalizer returns a normalizer stamping the given session identity.
func NewNormalizer(sessionID, sessionName string) *Normalizer {
	return &Normalizer{
		sessionID:   sessionID,
		sessionName: sessionName,
		detector:    outlier.NewDetector(outlier.DefaultConfig()),
		calculator:  calc.NewCalculator(),
	}
}

// Reset clears detector and calculator state for a new session.
func (n *Normalizer) Reset(sessionID, sessionName string) {
	n.sessionID = sessionID
	n.sessionName = sessionName
	n.detector.Reset()
	n.calculator.Reset()
}

// DetectorStats exposes the detector's rolling counters.
func (n *Normalizer) DetectorStats() outlier.Stats {
	return n.detector.Stats()
}

// Normalize canonicalizes the sample in place: session identity, timestamp,
// derived electrical and inertial fields, driver-input reconciliation, then
// outlier detection and metric calculation. Detection or calculation
// failures are logged and never block the sample.
func (n *Normalizer) Normalize(s *telemetry.Sample) *telemetry.Sample {
	s.SessionID = n.sessionID
	s.SessionName = n.sessionName
	s.Timestamp = coerceTimestamp(s.Timestamp)
	s.Sanitize()

	if s.PowerW == 0 {
		s.PowerW = s.VoltageV * s.CurrentA
	}
	if s.TotalAcceleration == 0 {
		s.TotalAcceleration = math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
	}
	if s.DataSource == "" {
		s.DataSource = telemetry.DataSourceReal
	}

	s.ThrottlePct, s.Throttle = reconcilePair(s.ThrottlePct, s.Throttle)
	s.BrakePct, s.Brake = reconcilePair(s.BrakePct, s.Brake)

	s.Outliers = n.detect(s)
	s.Derived = n.calculate(s)
	return s
}

func (n *Normalizer) detect(s *telemetry.Sample) (report *telemetry.OutlierReport) {
	defer func() {
		if r := recover(); r != nil {
			_ = log.Errorf("outlier detection panicked, sample passes unflagged: %v", r)
			report = nil
		}
	}()
	return n.detector.Detect(s)
}

func (n *Normalizer) calculate(s *telemetry.Sample) (derived map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			_ = log.Errorf("metric calculation panicked, sample passes without derived fields: %v", r)
			derived = nil
		}
	}()
	return n.calculator.Process(s)
}

// reconcilePair fills whichever of (percent, fraction) is zero from the
// other and clamps both to their legal ranges.
func reconcilePair(pct, frac float64) (float64, float64) {
	if pct == 0 && frac != 0 {
		pct = frac * 100
	} else if frac == 0 && pct != 0 {
		frac = pct / 100
	}
	return clamp(pct, 0, 100), clamp(frac, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// coerceTimestamp returns a UTC RFC3339 string, replacing empty, epoch-zero
// or unparseable inputs with the current time.
func coerceTimestamp(ts string) string {
	if ts == "" {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil || parsed.Unix() <= 0 {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return parsed.UTC().Format(time.RFC3339Nano)
}
