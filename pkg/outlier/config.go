// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package outlier implements per-sample anomaly detection over rolling
// statistics, absolute bounds, GPS track coherence and stuck-value counters.
package outlier

// Config holds the detection thresholds. Defaults are tuned against the
// mock generator's value ranges; real deployments override the electrical
// bounds to match the vehicle.
type Config struct {
	// WindowSize is the rolling-statistics window length per field.
	WindowSize int

	// ZScoreThreshold is the sigma distance beyond which an electrical
	// value is flagged.
	ZScoreThreshold float64

	// Electrical absolute bounds.
	VoltageMin, VoltageMax float64
	CurrentMin, CurrentMax float64
	PowerMin, PowerMax     float64

	// ElectricalJumpPct flags a value this far from the rolling mean, as a
	// fraction of the mean, when the z-score check did not fire.
	ElectricalJumpPct float64

	// StuckSensorCount is the consecutive-identical-values threshold.
	StuckSensorCount int

	// IMU bounds.
	AccelMagnitudeMax float64
	GyroRateMax       float64

	// GPS bounds and consistency thresholds.
	AltitudeMin, AltitudeMax float64
	GPSSpeedDistanceRatio    float64
	GPSImpossibleSpeed       float64
	AltitudeRateMax          float64

	// Speed bounds.
	SpeedMax            float64
	SpeedImpossibleAccel float64

	// Cumulative-field plausibility thresholds per sample.
	EnergyMaxIncrease   float64
	DistanceMaxIncrease float64

	// SampleInterval is the assumed spacing between samples, used for
	// rate-of-change checks.
	SampleInterval float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:            50,
		ZScoreThreshold:       5.0,
		VoltageMin:            35.0,
		VoltageMax:            60.0,
		CurrentMin:            -10.0,
		CurrentMax:            35.0,
		PowerMin:              -500.0,
		PowerMax:              2500.0,
		ElectricalJumpPct:     0.50,
		StuckSensorCount:      15,
		AccelMagnitudeMax:     80.0,
		GyroRateMax:           1000.0,
		AltitudeMin:           -500.0,
		AltitudeMax:           10000.0,
		GPSSpeedDistanceRatio: 20.0,
		GPSImpossibleSpeed:    500.0,
		AltitudeRateMax:       50.0,
		SpeedMax:              50.0,
		SpeedImpossibleAccel:  50.0,
		EnergyMaxIncrease:     50000.0,
		DistanceMaxIncrease:   100.0,
		SampleInterval:        0.2,
	}
}
