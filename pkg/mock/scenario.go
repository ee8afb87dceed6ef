// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package mock generates synthetic telemetry with configurable fault
// injection, used for development runs and for exercising the outlier
// detector.
package mock

import (
	"fmt"
	"strings"
)

// Scenario selects a fault-injection profile.
type Scenario string

// Available simulation scenarios.
const (
	ScenarioNormal         Scenario = "normal"
	ScenarioSensorFailures Scenario = "sensor_failures"
	ScenarioDataStalls     Scenario = "data_stalls"
	ScenarioIntermittent   Scenario = "intermittent"
	ScenarioGPSIssues      Scenario = "gps_issues"
	ScenarioChaos          Scenario = "chaos"
)

// Scenarios lists every valid scenario, menu order.
var Scenarios = []Scenario{
	ScenarioNormal, ScenarioSensorFailures, ScenarioDataStalls,
	ScenarioIntermittent, ScenarioGPSIssues, ScenarioChaos,
}

// ParseScenario resolves a case-insensitive scenario name.
func ParseScenario(name string) (Scenario, error) {
	s := Scenario(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Scenarios {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown mock scenario %q", name)
}

// Config holds the per-scenario fault probabilities and durations.
type Config struct {
	Scenario Scenario

	SensorFailureProbability float64
	SensorFailureDuration    int

	StallProbability float64
	StallDurationMin float64
	StallDurationMax float64

	DropProbability      float64
	BurstDropProbability float64

	GPSDriftActive      bool
	GPSAccuracyDegraded bool
	GPSJumpProbability  float64
}

// ConfigForScenario returns the fault profile of the given scenario.
func ConfigForScenario(s Scenario) Config {
	cfg := Config{Scenario: s, StallDurationMin: 3.0, StallDurationMax: 15.0}
	switch s {
	case ScenarioSensorFailures:
		cfg.SensorFailureProbability = 0.08
		cfg.SensorFailureDuration = 25
	case ScenarioDataStalls:
		cfg.StallProbability = 0.02
		cfg.StallDurationMin = 5.0
		cfg.StallDurationMax = 20.0
	case ScenarioIntermittent:
		cfg.DropProbability = 0.05
		cfg.BurstDropProbability = 0.02
	case ScenarioGPSIssues:
		cfg.GPSDriftActive = true
		cfg.GPSAccuracyDegraded = true
		cfg.GPSJumpProbability = 0.01
	case ScenarioChaos:
		cfg.SensorFailureProbability = 0.04
		cfg.SensorFailureDuration = 15
		cfg.StallProbability = 0.01
		cfg.StallDurationMin = 3.0
		cfg.StallDurationMax = 10.0
		cfg.DropProbability = 0.03
		cfg.BurstDropProbability = 0.01
		cfg.GPSDriftActive = true
		cfg.GPSJumpProbability = 0.005
	}
	return cfg
}

// DataSource returns the data_source tag stamped on generated samples.
func (c Config) DataSource() string {
	return "MOCK_" + strings.ToUpper(string(c.Scenario))
}
