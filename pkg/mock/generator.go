// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mock

import (
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

const (
	defaultInterval = 200 * time.Millisecond

	baseLat      = 40.7128
	baseLon      = -74.0060
	baseAltitude = 100.0
	speedMax     = 25.0
)

// Tuning shapes the clean signal before fault injection.
type Tuning struct {
	SpeedBase      float64
	SpeedAmplitude float64
	SpeedNoise     float64

	VoltageBase  float64
	VoltageNoise float64
	CurrentBase  float64
	CurrentNoise float64

	GPSLat    float64
	GPSLon    float64
	GPSRadius float64
	GPSNoise  float64

	GyroNoise  float64
	AccelNoise float64
}

// DefaultTuning matches the reference vehicle profile.
func DefaultTuning() Tuning {
	return Tuning{
		SpeedBase:      15.0,
		SpeedAmplitude: 5.0,
		SpeedNoise:     1.4,
		VoltageBase:    48.0,
		VoltageNoise:   1.4,
		CurrentBase:    7.5,
		CurrentNoise:   0.9,
		GPSLat:         baseLat,
		GPSLon:         baseLon,
		GPSRadius:      0.001,
		GPSNoise:       0.0001,
		GyroNoise:      0.5,
		AccelNoise:     0.2,
	}
}

// Stats counts generator activity, including suppressed output.
type Stats struct {
	MessagesGenerated int64 `json:"messages_generated"`
	MessagesDropped   int64 `json:"messages_dropped"`
	SensorFailures    int64 `json:"sensor_failures"`
	GPSJumps          int64 `json:"gps_jumps"`
	Stalls            int64 `json:"stalls"`
}

// failableSensors are candidates for the sensor-failure fault class.
var failableSensors = []string{
	"voltage_v", "current_a",
	"gyro_x", "gyro_y", "gyro_z",
	"accel_x", "accel_y", "accel_z",
}

var sensorSetters = map[string]func(*telemetry.Sample, float64){
	"voltage_v": func(s *telemetry.Sample, v float64) { s.VoltageV = v },
	"current_a": func(s *telemetry.Sample, v float64) { s.CurrentA = v },
	"gyro_x":    func(s *telemetry.Sample, v float64) { s.GyroX = v },
	"gyro_y":    func(s *telemetry.Sample, v float64) { s.GyroY = v },
	"gyro_z":    func(s *telemetry.Sample, v float64) { s.GyroZ = v },
	"accel_x":   func(s *telemetry.Sample, v float64) { s.AccelX = v },
	"accel_y":   func(s *telemetry.Sample, v float64) { s.AccelY = v },
	"accel_z":   func(s *telemetry.Sample, v float64) { s.AccelZ = v },
}

// Generator produces one synthetic sample per tick, possibly suppressing or
// corrupting it per the configured scenario. Single-goroutine use only.
type Generator struct {
	cfg      Config
	tuning   Tuning
	interval float64
	rng      *rand.Rand
	clk      clock.Clock

	sessionID   string
	sessionName string

	simulationTime int
	messageCount   int64
	prevSpeed      float64
	cumEnergy      float64
	cumDistance    float64

	stallActive  bool
	stallEndTime time.Time

	burstDropRemaining int

	sensorFailRemaining int
	failedSensors       []string

	driftLat float64
	driftLon float64

	stats Stats
}

// Option customizes a Generator.
type Option func(*Generator)

// WithRand injects a deterministic random source.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// WithClock injects the clock used for stall timing.
func WithClock(clk clock.Clock) Option {
	return func(g *Generator) { g.clk = clk }
}

// WithInterval overrides the simulated tick spacing.
func WithInterval(d time.Duration) Option {
	return func(g *Generator) { g.interval = d.Seconds() }
}

// WithTuning overrides the clean-signal profile.
func WithTuning(t Tuning) Option {
	return func(g *Generator) { g.tuning = t }
}

// NewGenerator returns a generator for the given scenario and session.
func NewGenerator(cfg Config, sessionID, sessionName string, opts ...Option) *Generator {
	g := &Generator{
		cfg:         cfg,
		tuning:      DefaultTuning(),
		interval:    defaultInterval.Seconds(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		clk:         clock.New(),
		sessionID:   sessionID,
		sessionName: sessionName,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reset clears simulation state for a new session.
func (g *Generator) Reset() {
	g.simulationTime = 0
	g.messageCount = 0
	g.prevSpeed = 0
	g.cumEnergy = 0
	g.cumDistance = 0
	g.stallActive = false
	g.burstDropRemaining = 0
	g.sensorFailRemaining = 0
	g.failedSensors = nil
	g.driftLat, g.driftLon = 0, 0
	g.stats = Stats{}
}

// Stats returns a copy of the counters.
func (g *Generator) Stats() Stats { return g.stats }

// Generate produces the next sample, or nil when the tick is suppressed by
// a stall or a drop.
func (g *Generator) Generate() *telemetry.Sample {
	if g.shouldStall() {
		return nil
	}
	if g.shouldDrop() {
		g.stats.MessagesDropped++
		return nil
	}

	s := g.nextSample()

	switch g.cfg.Scenario {
	case ScenarioSensorFailures, ScenarioChaos:
		g.applySensorFailures(s)
	}
	switch g.cfg.Scenario {
	case ScenarioGPSIssues, ScenarioChaos:
		g.applyGPSIssues(s)
	}
	return s
}

// GenerateBatch produces up to count samples, skipping suppressed ticks.
func (g *Generator) GenerateBatch(count int) []*telemetry.Sample {
	out := make([]*telemetry.Sample, 0, count)
	for i := 0; i < count; i++ {
		if s := g.Generate(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (g *Generator) nextSample() *telemetry.Sample {
	t := float64(g.simulationTime)
	tn := g.tuning

	baseSpeed := tn.SpeedBase + tn.SpeedAmplitude*math.Sin(t*0.1)
	speed := clampf(baseSpeed+g.rng.NormFloat64()*tn.SpeedNoise, 0, speedMax)

	voltage := clampf(tn.VoltageBase+g.rng.NormFloat64()*tn.VoltageNoise, 40, 55)
	current := clampf(tn.CurrentBase+speed*0.2+g.rng.NormFloat64()*tn.CurrentNoise, 0, 15)
	power := voltage * current

	g.cumEnergy += power * g.interval
	g.cumDistance += speed * g.interval

	latitude := tn.GPSLat + tn.GPSRadius*math.Sin(t*0.05) + g.rng.NormFloat64()*tn.GPSNoise
	longitude := tn.GPSLon + tn.GPSRadius*math.Cos(t*0.05) + g.rng.NormFloat64()*tn.GPSNoise
	altitude := baseAltitude + 10.0*math.Sin(t*0.03) + g.rng.NormFloat64()

	turningRate := 2.0 * math.Sin(t*0.08)
	gyroX := g.rng.NormFloat64() * tn.GyroNoise
	gyroY := g.rng.NormFloat64() * 0.3
	gyroZ := turningRate + g.rng.NormFloat64()*0.8

	speedAcc := (speed - g.prevSpeed) / g.interval
	g.prevSpeed = speed
	vib := speed * 0.02
	accelX := speedAcc + g.rng.NormFloat64()*tn.AccelNoise + g.rng.NormFloat64()*vib
	accelY := turningRate*speed*0.1 + g.rng.NormFloat64()*0.1 + g.rng.NormFloat64()*vib
	accelZ := 9.81 + g.rng.NormFloat64()*0.05 + g.rng.NormFloat64()*vib
	totalAcc := math.Sqrt(accelX*accelX + accelY*accelY + accelZ*accelZ)

	phase := (math.Sin(t*0.06) + 1) / 2
	thBase := 20 + 70*phase
	var throttlePct, brakePct float64
	if g.simulationTime%120 < 12 || g.rng.Float64() < 0.03 {
		brakePct = clampf(60+g.rng.NormFloat64()*15, 15, 100)
		throttlePct = math.Max(0, thBase-brakePct*0.6)
	} else {
		brakePct = math.Max(0, 2+g.rng.NormFloat64())
		throttlePct = clampf(thBase+g.rng.NormFloat64()*5, 5, 100)
	}

	g.simulationTime++
	g.messageCount++
	g.stats.MessagesGenerated++

	return &telemetry.Sample{
		SessionID:         g.sessionID,
		SessionName:       g.sessionName,
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
		SpeedMS:           round2(speed),
		VoltageV:          round2(voltage),
		CurrentA:          round2(current),
		PowerW:            round2(power),
		EnergyJ:           round2(g.cumEnergy),
		DistanceM:         round2(g.cumDistance),
		Latitude:          round6(latitude),
		Longitude:         round6(longitude),
		Altitude:          round2(altitude),
		GyroX:             round3(gyroX),
		GyroY:             round3(gyroY),
		GyroZ:             round3(gyroZ),
		AccelX:            round3(accelX),
		AccelY:            round3(accelY),
		AccelZ:            round3(accelZ),
		TotalAcceleration: round3(totalAcc),
		MessageID:         g.messageCount,
		UptimeSeconds:     float64(g.simulationTime) * g.interval,
		ThrottlePct:       round1(throttlePct),
		BrakePct:          round1(brakePct),
		Throttle:          round3(throttlePct / 100),
		Brake:             round3(brakePct / 100),
		DataSource:        g.cfg.DataSource(),
	}
}

func (g *Generator) shouldStall() bool {
	if g.stallActive {
		if g.clk.Now().Before(g.stallEndTime) {
			return true
		}
		g.stallActive = false
		log.Info("simulation: data stall ended, resuming")
		return false
	}
	if g.cfg.StallProbability > 0 && g.rng.Float64() < g.cfg.StallProbability {
		duration := g.cfg.StallDurationMin + g.rng.Float64()*(g.cfg.StallDurationMax-g.cfg.StallDurationMin)
		g.stallActive = true
		g.stallEndTime = g.clk.Now().Add(time.Duration(duration * float64(time.Second)))
		g.stats.Stalls++
		_ = log.Warnf("simulation: data stall started (%.1fs)", duration)
		return true
	}
	return false
}

func (g *Generator) shouldDrop() bool {
	if g.burstDropRemaining > 0 {
		g.burstDropRemaining--
		return true
	}
	if g.cfg.BurstDropProbability > 0 && g.rng.Float64() < g.cfg.BurstDropProbability {
		g.burstDropRemaining = 3 + g.rng.Intn(8)
		_ = log.Warnf("simulation: burst drop started (%d messages)", g.burstDropRemaining)
		return true
	}
	return g.cfg.DropProbability > 0 && g.rng.Float64() < g.cfg.DropProbability
}

func (g *Generator) applySensorFailures(s *telemetry.Sample) {
	if g.sensorFailRemaining <= 0 && g.rng.Float64() < g.cfg.SensorFailureProbability {
		g.sensorFailRemaining = g.cfg.SensorFailureDuration
		count := 1 + g.rng.Intn(4)
		perm := g.rng.Perm(len(failableSensors))
		g.failedSensors = make([]string, 0, count)
		for _, idx := range perm[:count] {
			g.failedSensors = append(g.failedSensors, failableSensors[idx])
		}
		g.stats.SensorFailures++
		_ = log.Warnf("simulation: sensor failure started for %v", g.failedSensors)
	}
	if g.sensorFailRemaining > 0 {
		for _, sensor := range g.failedSensors {
			if g.rng.Float64() < 0.7 {
				sensorSetters[sensor](s, 0)
			} else {
				sensorSetters[sensor](s, -999+g.rng.Float64()*1998)
			}
		}
		g.sensorFailRemaining--
		if g.sensorFailRemaining == 0 {
			log.Info("simulation: sensor failure recovered")
		}
	}
}

func (g *Generator) applyGPSIssues(s *telemetry.Sample) {
	if g.cfg.GPSDriftActive {
		g.driftLat += g.rng.NormFloat64() * 0.00002
		g.driftLon += g.rng.NormFloat64() * 0.00002
		// Occasional recalibration pulls the drift halfway back.
		if g.rng.Float64() < 0.005 {
			g.driftLat *= 0.5
			g.driftLon *= 0.5
		}
		s.Latitude += g.driftLat
		s.Longitude += g.driftLon
	}
	if g.cfg.GPSAccuracyDegraded {
		s.Latitude += g.rng.NormFloat64() * 0.0005
		s.Longitude += g.rng.NormFloat64() * 0.0005
		s.Altitude += g.rng.NormFloat64() * 5
	}
	if g.cfg.GPSJumpProbability > 0 && g.rng.Float64() < g.cfg.GPSJumpProbability {
		jumpLat := -0.01 + g.rng.Float64()*0.02
		jumpLon := -0.01 + g.rng.Float64()*0.02
		s.Latitude += jumpLat
		s.Longitude += jumpLon
		g.stats.GPSJumps++
		_ = log.Warnf("simulation: GPS position jump (%.4f, %.4f)", jumpLat, jumpLon)
	}
}

func clampf(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
