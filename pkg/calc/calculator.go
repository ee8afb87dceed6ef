// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package calc

import (
	"fmt"
	"math"
	"time"

	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
)

const (
	calcWindowSize = 50
	gravity        = 9.81

	peakRetain  = 50
	peakSurface = 10

	// GPS segment guards.
	gpsSegmentMaxM    = 1000.0
	elevationStepMaxM = 50.0

	speedBucketWidthMS = 5.0
	speedBucketCount   = 6
)

// Peak is one recorded spike on current or acceleration.
type Peak struct {
	Timestamp   string  `json:"timestamp"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	MotionState string  `json:"motion_state"`
	AccelMag    float64 `json:"accel_magnitude"`
	Severity    string  `json:"severity"`
}

// Calculator derives the additive metric set attached to every sample.
// Single-writer, owned by the normalizer.
type Calculator struct {
	optimizer *Optimizer

	speedWin   *telemetry.RollingWindow
	voltageWin *telemetry.RollingWindow
	currentWin *telemetry.RollingWindow
	powerWin   *telemetry.RollingWindow
	accelWin   *telemetry.RollingWindow

	deltaDist   *telemetry.RollingWindow
	deltaEnergy *telemetry.RollingWindow

	maxSpeedKmh float64
	maxPowerW   float64
	maxCurrentA float64
	maxGForce   float64

	cumulativeEnergyKWh float64

	bucketDist   [speedBucketCount]float64
	bucketEnergy [speedBucketCount]float64

	currentPeaks []Peak
	accelPeaks   []Peak

	gpsDistanceM   float64
	elevationGainM float64

	lastSpeed    float64
	lastEnergy   float64
	lastDistance float64
	lastLat      float64
	lastLon      float64
	lastAlt      float64
	lastTime     time.Time
	havePrev     bool
	haveGPS      bool
}

// NewCalculator returns a calculator with a fresh optimizer.
func NewCalculator() *Calculator {
	return &Calculator{
		optimizer:   NewOptimizer(),
		speedWin:    telemetry.NewRollingWindow(calcWindowSize),
		voltageWin:  telemetry.NewRollingWindow(calcWindowSize),
		currentWin:  telemetry.NewRollingWindow(calcWindowSize),
		powerWin:    telemetry.NewRollingWindow(calcWindowSize),
		accelWin:    telemetry.NewRollingWindow(calcWindowSize),
		deltaDist:   telemetry.NewRollingWindow(calcWindowSize),
		deltaEnergy: telemetry.NewRollingWindow(calcWindowSize),
	}
}

// Reset clears all session state for a new run.
func (c *Calculator) Reset() {
	*c = *NewCalculator()
}

// Process derives the metric set for one sample and advances internal state.
func (c *Calculator) Process(s *telemetry.Sample) map[string]interface{} {
	now := time.Now()
	dt := 0.2
	if c.havePrev {
		if wall := now.Sub(c.lastTime).Seconds(); wall > 0 && wall <= 5 {
			dt = wall
		}
	}

	out := make(map[string]interface{}, 32)

	accelMag := math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + (s.AccelZ-gravity)*(s.AccelZ-gravity))
	gForce := accelMag / gravity
	out["acceleration_magnitude"] = round3(accelMag)
	out["g_force"] = round3(gForce)

	motion := c.motionState(s, dt)
	out["motion_state"] = motion
	out["driver_mode"] = driverMode(s.ThrottlePct, s.BrakePct, s.SpeedMS)
	out["throttle_intensity"] = throttleIntensity(s.ThrottlePct)
	out["brake_intensity"] = brakeIntensity(s.BrakePct)

	// Session extremes.
	speedKmh := s.SpeedMS * 3.6
	c.maxSpeedKmh = math.Max(c.maxSpeedKmh, speedKmh)
	c.maxPowerW = math.Max(c.maxPowerW, s.PowerW)
	c.maxCurrentA = math.Max(c.maxCurrentA, s.CurrentA)
	c.maxGForce = math.Max(c.maxGForce, gForce)
	out["max_speed_kmh"] = round3(c.maxSpeedKmh)
	out["max_power_w"] = round3(c.maxPowerW)
	out["max_current_a"] = round3(c.maxCurrentA)
	out["max_g_force"] = round3(c.maxGForce)

	// Peak detection runs against the pre-update window statistics.
	c.detectCurrentPeak(s, motion, accelMag, out)
	c.detectAccelPeak(s, motion, accelMag, out)

	c.speedWin.Push(s.SpeedMS)
	c.voltageWin.Push(s.VoltageV)
	c.currentWin.Push(s.CurrentA)
	c.powerWin.Push(s.PowerW)
	c.accelWin.Push(accelMag)

	out["avg_speed_ms"] = round3(c.speedWin.Mean())
	out["avg_voltage_v"] = round3(c.voltageWin.Mean())
	out["avg_current_a"] = round3(c.currentWin.Mean())
	out["avg_power_w"] = round3(c.powerWin.Mean())
	out["avg_acceleration"] = round3(c.accelWin.Mean())

	c.cumulativeEnergyKWh += s.PowerW * dt / 3.6e6
	out["cumulative_energy_kwh"] = c.cumulativeEnergyKWh

	if c.havePrev {
		dd := s.DistanceM - c.lastDistance
		de := s.EnergyJ - c.lastEnergy
		if dd >= 0 && de >= 0 {
			c.deltaDist.Push(dd)
			c.deltaEnergy.Push(de)
			c.addToBucket(s.SpeedMS, dd, de)
		}
	}
	if eff, ok := c.integratedEfficiency(); ok {
		out["efficiency_km_per_kwh"] = round3(eff)
	}
	if rng, ok := c.bestBucket(); ok {
		out["optimal_speed_range"] = rng
	}

	c.optimizer.Add(s.SpeedMS, s.PowerW)
	if opt, ok := c.optimizer.Result(); ok {
		out["optimal_speed_ms"] = round3(opt.SpeedMS)
		out["optimal_speed_confidence"] = round3(opt.Confidence)
		if opt.EfficiencyKmKWh > 0 {
			out["optimal_efficiency_km_kwh"] = round3(opt.EfficiencyKmKWh)
		}
	}

	c.updateGPS(s)
	out["gps_distance_m"] = round3(c.gpsDistanceM)
	out["elevation_gain_m"] = round3(c.elevationGainM)

	c.lastSpeed = s.SpeedMS
	c.lastEnergy = s.EnergyJ
	c.lastDistance = s.DistanceM
	c.lastTime = now
	c.havePrev = true

	return out
}

func (c *Calculator) motionState(s *telemetry.Sample, dt float64) string {
	if s.SpeedMS < 0.5 {
		return "stationary"
	}
	if math.Abs(s.GyroZ) > 15 {
		return "turning"
	}
	if c.havePrev && dt > 0 {
		switch accel := (s.SpeedMS - c.lastSpeed) / dt; {
		case accel < -2:
			return "braking"
		case accel > 2:
			return "accelerating"
		}
	}
	return "cruising"
}

func driverMode(throttlePct, brakePct, speedMS float64) string {
	switch {
	case brakePct > 20:
		return "braking"
	case throttlePct < 10 && speedMS > 1:
		return "coasting"
	case throttlePct < 40:
		return "eco"
	case throttlePct < 70:
		return "normal"
	default:
		return "aggressive"
	}
}

func throttleIntensity(pct float64) string {
	switch {
	case pct < 5:
		return "idle"
	case pct < 30:
		return "light"
	case pct < 60:
		return "moderate"
	default:
		return "heavy"
	}
}

func brakeIntensity(pct float64) string {
	switch {
	case pct < 5:
		return "idle"
	case pct < 25:
		return "light"
	case pct < 55:
		return "moderate"
	default:
		return "heavy"
	}
}

func (c *Calculator) integratedEfficiency() (float64, bool) {
	sumE := c.deltaEnergy.Count()
	if sumE == 0 {
		return 0, false
	}
	var dist, energy float64
	for _, v := range c.deltaDist.LastN(calcWindowSize) {
		dist += v
	}
	for _, v := range c.deltaEnergy.LastN(calcWindowSize) {
		energy += v
	}
	if energy <= 0 {
		return 0, false
	}
	// (m -> km) / (J -> kWh) collapses to 3600*d/e.
	eff := 3600 * dist / energy
	if eff <= 0 || eff >= efficiencyCap {
		return 0, false
	}
	return eff, true
}

func (c *Calculator) addToBucket(speedMS, dd, de float64) {
	// Buckets are half-open [lo, lo+5) m/s; speeds outside [0, 30) are not
	// attributable to any bucket.
	if speedMS < 0 || speedMS >= speedBucketWidthMS*speedBucketCount {
		return
	}
	bucket := int(speedMS / speedBucketWidthMS)
	c.bucketDist[bucket] += dd
	c.bucketEnergy[bucket] += de
}

func (c *Calculator) bestBucket() (string, bool) {
	best, bestEff := -1, 0.0
	for i := 0; i < speedBucketCount; i++ {
		if c.bucketEnergy[i] <= 0 {
			continue
		}
		eff := 3600 * c.bucketDist[i] / c.bucketEnergy[i]
		if eff > bestEff && eff < efficiencyCap {
			best, bestEff = i, eff
		}
	}
	if best < 0 {
		return "", false
	}
	lo := float64(best) * speedBucketWidthMS
	return fmt.Sprintf("%.0f-%.0f m/s", lo, lo+speedBucketWidthMS), true
}

func (c *Calculator) detectCurrentPeak(s *telemetry.Sample, motion string, accelMag float64, out map[string]interface{}) {
	mean, std := c.currentWin.Mean(), c.currentWin.Std()
	if mean > 0.5 && c.currentWin.Count() >= 10 {
		threshold := math.Max(mean+2*std, mean*1.5)
		if s.CurrentA > threshold {
			sev := "low"
			switch {
			case s.CurrentA > threshold*1.5:
				sev = "high"
			case s.CurrentA > threshold*1.2:
				sev = "medium"
			}
			c.currentPeaks = appendPeak(c.currentPeaks, Peak{
				Timestamp:   s.Timestamp,
				Value:       round3(s.CurrentA),
				Threshold:   round3(threshold),
				MotionState: motion,
				AccelMag:    round3(accelMag),
				Severity:    sev,
			})
		}
	}
	out["current_peak_count"] = len(c.currentPeaks)
	if n := len(c.currentPeaks); n > 0 {
		out["current_peaks"] = surfacePeaks(c.currentPeaks)
	}
}

func (c *Calculator) detectAccelPeak(s *telemetry.Sample, motion string, accelMag float64, out map[string]interface{}) {
	mean, std := c.accelWin.Mean(), c.accelWin.Std()
	if c.accelWin.Count() >= 10 && accelMag > 2 {
		threshold := math.Max(mean+2*std, mean*1.5)
		if accelMag > threshold {
			g := accelMag / gravity
			sev := "low"
			switch {
			case g > 2:
				sev = "high"
			case g > 1:
				sev = "medium"
			}
			c.accelPeaks = appendPeak(c.accelPeaks, Peak{
				Timestamp:   s.Timestamp,
				Value:       round3(accelMag),
				Threshold:   round3(threshold),
				MotionState: motion,
				AccelMag:    round3(accelMag),
				Severity:    sev,
			})
		}
	}
	out["accel_peak_count"] = len(c.accelPeaks)
	if n := len(c.accelPeaks); n > 0 {
		out["accel_peaks"] = surfacePeaks(c.accelPeaks)
	}
}

func appendPeak(peaks []Peak, p Peak) []Peak {
	peaks = append(peaks, p)
	if len(peaks) > peakRetain {
		peaks = peaks[len(peaks)-peakRetain:]
	}
	return peaks
}

func surfacePeaks(peaks []Peak) []Peak {
	if len(peaks) <= peakSurface {
		out := make([]Peak, len(peaks))
		copy(out, peaks)
		return out
	}
	out := make([]Peak, peakSurface)
	copy(out, peaks[len(peaks)-peakSurface:])
	return out
}

func (c *Calculator) updateGPS(s *telemetry.Sample) {
	if s.Latitude == 0 && s.Longitude == 0 {
		return
	}
	if c.haveGPS {
		d := haversineM(c.lastLat, c.lastLon, s.Latitude, s.Longitude)
		if d < gpsSegmentMaxM {
			c.gpsDistanceM += d
		}
		if dAlt := s.Altitude - c.lastAlt; dAlt > 0 {
			c.elevationGainM += math.Min(dAlt, elevationStepMaxM)
		}
	}
	c.lastLat, c.lastLon, c.lastAlt = s.Latitude, s.Longitude, s.Altitude
	c.haveGPS = true
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	rad := math.Pi / 180
	dlat := (lat2 - lat1) * rad
	dlon := (lon2 - lon1) * rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
