// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package outlier

import (
	"math"
	"sort"
	"time"

	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
)

// RollingFields are the sample fields backed by a rolling window.
var RollingFields = []string{
	"voltage_v", "current_a", "power_w",
	"gyro_x", "gyro_y", "gyro_z",
	"accel_x", "accel_y", "accel_z",
	"speed_ms",
}

// criticalFields drive the severity escalation to critical.
var criticalFields = map[string]struct{}{
	"voltage_v": {}, "current_a": {}, "power_w": {},
}

var fieldGetters = map[string]func(*telemetry.Sample) float64{
	"voltage_v": func(s *telemetry.Sample) float64 { return s.VoltageV },
	"current_a": func(s *telemetry.Sample) float64 { return s.CurrentA },
	"power_w":   func(s *telemetry.Sample) float64 { return s.PowerW },
	"gyro_x":    func(s *telemetry.Sample) float64 { return s.GyroX },
	"gyro_y":    func(s *telemetry.Sample) float64 { return s.GyroY },
	"gyro_z":    func(s *telemetry.Sample) float64 { return s.GyroZ },
	"accel_x":   func(s *telemetry.Sample) float64 { return s.AccelX },
	"accel_y":   func(s *telemetry.Sample) float64 { return s.AccelY },
	"accel_z":   func(s *telemetry.Sample) float64 { return s.AccelZ },
	"speed_ms":  func(s *telemetry.Sample) float64 { return s.SpeedMS },
}

// Detector flags anomalous fields on each sample. It is owned by the ingest
// path and is not safe for concurrent use.
type Detector struct {
	cfg Config

	windows  map[string]*telemetry.RollingWindow
	gpsTrack *telemetry.GPSTrackWindow

	lastEnergy   float64
	lastDistance float64
	haveEnergy   bool
	haveDistance bool

	stuckCounters map[string]int
	lastValues    map[string]float64
	haveLast      map[string]bool

	stats Stats
}

// Stats are the detector's rolling counters.
type Stats struct {
	TotalMessages       int64                                  `json:"total_messages"`
	MessagesWithFlags   int64                                  `json:"messages_with_outliers"`
	BySeverity          map[telemetry.OutlierSeverity]int64    `json:"outliers_by_severity"`
	ByField             map[string]int64                       `json:"outliers_by_field"`
	AvgDetectionTimeMS  float64                                `json:"avg_detection_time_ms"`
	detectionTimes      []float64
}

// NewDetector returns a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	d := &Detector{
		cfg:           cfg,
		windows:       make(map[string]*telemetry.RollingWindow, len(RollingFields)),
		gpsTrack:      telemetry.NewGPSTrackWindow(20),
		stuckCounters: make(map[string]int),
		lastValues:    make(map[string]float64),
		haveLast:      make(map[string]bool),
	}
	for _, f := range RollingFields {
		d.windows[f] = telemetry.NewRollingWindow(cfg.WindowSize)
	}
	d.stats.BySeverity = map[telemetry.OutlierSeverity]int64{
		telemetry.SeverityInfo: 0, telemetry.SeverityWarning: 0, telemetry.SeverityCritical: 0,
	}
	d.stats.ByField = make(map[string]int64)
	return d
}

// Reset clears all rolling state for a new session.
func (d *Detector) Reset() {
	for _, w := range d.windows {
		w.Reset()
	}
	d.gpsTrack.Reset()
	d.haveEnergy, d.haveDistance = false, false
	d.stuckCounters = make(map[string]int)
	d.lastValues = make(map[string]float64)
	d.haveLast = make(map[string]bool)
	d.stats = Stats{
		BySeverity: map[telemetry.OutlierSeverity]int64{
			telemetry.SeverityInfo: 0, telemetry.SeverityWarning: 0, telemetry.SeverityCritical: 0,
		},
		ByField: make(map[string]int64),
	}
}

type flagSet struct {
	fields     map[string]struct{}
	confidence map[string]float64
	reasons    map[string]telemetry.OutlierReason
}

func newFlagSet() *flagSet {
	return &flagSet{
		fields:     make(map[string]struct{}),
		confidence: make(map[string]float64),
		reasons:    make(map[string]telemetry.OutlierReason),
	}
}

func (fs *flagSet) add(field string, conf float64, reason telemetry.OutlierReason) {
	fs.fields[field] = struct{}{}
	fs.confidence[field] = conf
	fs.reasons[field] = reason
}

func (fs *flagSet) has(field string) bool {
	_, ok := fs.fields[field]
	return ok
}

// Detect runs all checks against one sample, updates the rolling state and
// returns a report, or nil when no field was flagged.
func (d *Detector) Detect(s *telemetry.Sample) *telemetry.OutlierReport {
	start := time.Now()
	fs := newFlagSet()

	d.detectElectrical(s, fs)
	d.detectIMU(s, fs)
	d.detectGPS(s, fs)
	d.detectSpeed(s, fs)
	d.detectCumulative(s, fs)
	d.detectStuckSensors(s, fs)

	d.updateWindows(s)

	report := d.buildReport(fs)
	d.recordStats(report, time.Since(start))
	return report
}

func (d *Detector) detectElectrical(s *telemetry.Sample, fs *flagSet) {
	bounds := []struct {
		field    string
		min, max float64
	}{
		{"voltage_v", d.cfg.VoltageMin, d.cfg.VoltageMax},
		{"current_a", d.cfg.CurrentMin, d.cfg.CurrentMax},
		{"power_w", d.cfg.PowerMin, d.cfg.PowerMax},
	}
	for _, b := range bounds {
		v := fieldGetters[b.field](s)
		if v < b.min || v > b.max {
			fs.add(b.field, 1.0, telemetry.ReasonAbsoluteBound)
			continue
		}
		w := d.windows[b.field]
		if w.Count() < 10 {
			continue
		}
		mean, std := w.Mean(), w.Std()
		if std > 0 {
			z := math.Abs(v-mean) / std
			if z > d.cfg.ZScoreThreshold {
				fs.add(b.field, math.Min(1.0, z/(d.cfg.ZScoreThreshold*2)), telemetry.ReasonZScoreExceeded)
				continue
			}
		}
		if mean != 0 && math.Abs(v-mean)/math.Abs(mean) > d.cfg.ElectricalJumpPct {
			fs.add(b.field, 0.7, telemetry.ReasonSuddenJump)
		}
	}
}

func (d *Detector) detectIMU(s *telemetry.Sample, fs *flagSet) {
	mag := math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
	if mag > d.cfg.AccelMagnitudeMax {
		// Flag only the dominant axis.
		axis, v := "accel_x", math.Abs(s.AccelX)
		if math.Abs(s.AccelY) > v {
			axis, v = "accel_y", math.Abs(s.AccelY)
		}
		if math.Abs(s.AccelZ) > v {
			axis = "accel_z"
		}
		fs.add(axis, math.Min(1.0, mag/d.cfg.AccelMagnitudeMax), telemetry.ReasonMagnitudeExceeded)
	}

	for _, field := range []string{"gyro_x", "gyro_y", "gyro_z"} {
		w := d.windows[field]
		last := w.LastN(1)
		if len(last) == 0 {
			continue
		}
		delta := math.Abs(fieldGetters[field](s) - last[0])
		if delta > d.cfg.GyroRateMax {
			fs.add(field, math.Min(1.0, delta/(d.cfg.GyroRateMax*2)), telemetry.ReasonRateOfChange)
		}
	}
}

func (d *Detector) detectGPS(s *telemetry.Sample, fs *flagSet) {
	if s.Latitude < -90 || s.Latitude > 90 {
		fs.add("latitude", 1.0, telemetry.ReasonAbsoluteBound)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		fs.add("longitude", 1.0, telemetry.ReasonAbsoluteBound)
	}
	if s.Altitude < d.cfg.AltitudeMin || s.Altitude > d.cfg.AltitudeMax {
		fs.add("altitude", 1.0, telemetry.ReasonAbsoluteBound)
	}

	prev, ok := d.gpsTrack.Previous()
	if !ok {
		return
	}
	dt := d.cfg.SampleInterval
	// Planar approximation tuned for mid-latitudes; deliberately not the
	// calculator's Haversine path.
	dlat := (s.Latitude - prev.Lat) * 111000
	dlon := (s.Longitude - prev.Lon) * 78000
	dist := math.Sqrt(dlat*dlat + dlon*dlon)

	if s.SpeedMS > 0 {
		expected := s.SpeedMS * dt
		if ratio := dist / expected; ratio > d.cfg.GPSSpeedDistanceRatio {
			fs.add("latitude", math.Min(1.0, ratio/(d.cfg.GPSSpeedDistanceRatio*2)), telemetry.ReasonGPSSpeedMismatch)
		}
	}

	if implied := dist / dt; implied > d.cfg.GPSImpossibleSpeed && !fs.has("latitude") {
		fs.add("latitude", math.Min(1.0, implied/(d.cfg.GPSImpossibleSpeed*2)), telemetry.ReasonImpossibleSpeed)
	}

	if change := math.Abs(s.Altitude - prev.Alt); change > d.cfg.AltitudeRateMax && !fs.has("altitude") {
		fs.add("altitude", math.Min(1.0, change/(d.cfg.AltitudeRateMax*2)), telemetry.ReasonAltitudeRate)
	}
}

func (d *Detector) detectSpeed(s *telemetry.Sample, fs *flagSet) {
	if s.SpeedMS < 0 {
		fs.add("speed_ms", 1.0, telemetry.ReasonNegativeValue)
		return
	}
	if s.SpeedMS > d.cfg.SpeedMax {
		fs.add("speed_ms", math.Min(1.0, s.SpeedMS/(d.cfg.SpeedMax*1.5)), telemetry.ReasonAbsoluteBound)
		return
	}
	last := d.windows["speed_ms"].LastN(1)
	if len(last) == 0 {
		return
	}
	accel := math.Abs(s.SpeedMS-last[0]) / d.cfg.SampleInterval
	if accel > d.cfg.SpeedImpossibleAccel {
		fs.add("speed_ms", math.Min(1.0, accel/(d.cfg.SpeedImpossibleAccel*2)), telemetry.ReasonRateOfChange)
	}
}

func (d *Detector) detectCumulative(s *telemetry.Sample, fs *flagSet) {
	if d.haveEnergy {
		switch {
		case s.EnergyJ < d.lastEnergy:
			fs.add("energy_j", 1.0, telemetry.ReasonNonMonotonic)
		case s.EnergyJ-d.lastEnergy > d.cfg.EnergyMaxIncrease:
			fs.add("energy_j", 0.8, telemetry.ReasonImplausibleIncrease)
		}
	}
	if d.haveDistance {
		switch {
		case s.DistanceM < d.lastDistance:
			fs.add("distance_m", 1.0, telemetry.ReasonNonMonotonic)
		case s.DistanceM-d.lastDistance > d.cfg.DistanceMaxIncrease:
			fs.add("distance_m", 0.8, telemetry.ReasonImplausibleIncrease)
		}
	}
}

func (d *Detector) detectStuckSensors(s *telemetry.Sample, fs *flagSet) {
	for _, field := range RollingFields {
		v := fieldGetters[field](s)
		if d.haveLast[field] && d.lastValues[field] == v {
			d.stuckCounters[field]++
			if d.stuckCounters[field] >= d.cfg.StuckSensorCount && !fs.has(field) {
				conf := math.Min(1.0, float64(d.stuckCounters[field])/float64(d.cfg.StuckSensorCount*2))
				fs.add(field, conf, telemetry.ReasonStuckSensor)
			}
		} else {
			d.stuckCounters[field] = 0
		}
		d.lastValues[field] = v
		d.haveLast[field] = true
	}
}

func (d *Detector) updateWindows(s *telemetry.Sample) {
	for _, field := range RollingFields {
		d.windows[field].Push(fieldGetters[field](s))
	}
	d.gpsTrack.Push(telemetry.GPSPoint{
		Lat:  s.Latitude,
		Lon:  s.Longitude,
		Alt:  s.Altitude,
		Time: float64(time.Now().UnixNano()) / 1e9,
	})
	d.lastEnergy, d.haveEnergy = s.EnergyJ, true
	d.lastDistance, d.haveDistance = s.DistanceM, true
}

func (d *Detector) buildReport(fs *flagSet) *telemetry.OutlierReport {
	if len(fs.fields) == 0 {
		return nil
	}
	fields := make([]string, 0, len(fs.fields))
	for f := range fs.fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	severity := telemetry.SeverityInfo
	critical := false
	for f := range fs.fields {
		if _, ok := criticalFields[f]; ok {
			critical = true
			break
		}
	}
	switch {
	case critical:
		severity = telemetry.SeverityCritical
	case len(fields) >= 3:
		severity = telemetry.SeverityWarning
	default:
		for _, c := range fs.confidence {
			if c > 0.9 {
				severity = telemetry.SeverityWarning
				break
			}
		}
	}

	return &telemetry.OutlierReport{
		FlaggedFields: fields,
		Confidence:    fs.confidence,
		Reasons:       fs.reasons,
		Severity:      severity,
	}
}

func (d *Detector) recordStats(report *telemetry.OutlierReport, cost time.Duration) {
	d.stats.TotalMessages++
	if report != nil {
		d.stats.MessagesWithFlags++
		d.stats.BySeverity[report.Severity]++
		for _, f := range report.FlaggedFields {
			d.stats.ByField[f]++
		}
	}
	ms := float64(cost.Microseconds()) / 1000.0
	d.stats.detectionTimes = append(d.stats.detectionTimes, ms)
	if len(d.stats.detectionTimes) > 100 {
		d.stats.detectionTimes = d.stats.detectionTimes[len(d.stats.detectionTimes)-100:]
	}
	var sum float64
	for _, t := range d.stats.detectionTimes {
		sum += t
	}
	d.stats.AvgDetectionTimeMS = sum / float64(len(d.stats.detectionTimes))
}

// Stats returns a copy of the rolling counters.
func (d *Detector) Stats() Stats {
	out := d.stats
	out.BySeverity = make(map[telemetry.OutlierSeverity]int64, len(d.stats.BySeverity))
	for k, v := range d.stats.BySeverity {
		out.BySeverity[k] = v
	}
	out.ByField = make(map[string]int64, len(d.stats.ByField))
	for k, v := range d.stats.ByField {
		out.ByField[k] = v
	}
	out.detectionTimes = nil
	return out
}
