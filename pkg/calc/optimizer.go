// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package calc derives per-sample metrics from the telemetry stream and
// estimates the efficiency-optimal cruising speed from observed
// speed/power pairs.
package calc

import "math"

const (
	optimizerCapacity = 500
	optimizerMinFit   = 30
	optimizerRefitGap = 10

	speedFitMin = 2.0
	speedFitMax = 30.0
	powerFitMax = 10000.0

	efficiencyCap = 500.0
)

// OptimalSpeed is the optimizer's exposed estimate.
type OptimalSpeed struct {
	SpeedMS float64 `json:"speed_ms"`
	// EfficiencyKmKWh is 0 when the estimate at the optimum is nonsensical.
	EfficiencyKmKWh float64 `json:"efficiency_km_kwh"`
	Confidence      float64 `json:"confidence"`
	SampleCount     int     `json:"sample_count"`
}

// Optimizer fits power = f(speed) with a cubic and sweeps it for the speed
// minimizing energy per meter. Owned by the calculator, single writer.
type Optimizer struct {
	speeds []float64
	powers []float64
	index  int
	count  int

	addsSinceFit int
	result       OptimalSpeed
	haveResult   bool
}

// NewOptimizer returns an empty optimizer.
func NewOptimizer() *Optimizer {
	return &Optimizer{
		speeds: make([]float64, optimizerCapacity),
		powers: make([]float64, optimizerCapacity),
	}
}

// Add records one speed/power observation. Out-of-range pairs are ignored.
// The model is refit at most every 10 accepted pairs once 30 are buffered.
func (o *Optimizer) Add(speedMS, powerW float64) {
	if speedMS < speedFitMin || speedMS > speedFitMax {
		return
	}
	if powerW <= 0 || powerW > powerFitMax {
		return
	}
	o.speeds[o.index] = speedMS
	o.powers[o.index] = powerW
	o.index = (o.index + 1) % optimizerCapacity
	if o.count < optimizerCapacity {
		o.count++
	}
	o.addsSinceFit++
	if o.count >= optimizerMinFit && o.addsSinceFit >= optimizerRefitGap {
		o.refit()
		o.addsSinceFit = 0
	}
}

// Result returns the current estimate, or false when confidence is below
// the reporting floor.
func (o *Optimizer) Result() (OptimalSpeed, bool) {
	if !o.haveResult || o.result.Confidence < 0.3 {
		return OptimalSpeed{}, false
	}
	return o.result, true
}

// Reset drops all buffered pairs and the current estimate.
func (o *Optimizer) Reset() {
	o.index = 0
	o.count = 0
	o.addsSinceFit = 0
	o.haveResult = false
	o.result = OptimalSpeed{}
}

func (o *Optimizer) refit() {
	xs := o.speeds[:o.count]
	ys := o.powers[:o.count]

	coeffs, ok := polyfit3(xs, ys)
	if !ok {
		return
	}

	minObs, maxObs := xs[0], xs[0]
	for _, x := range xs {
		if x < minObs {
			minObs = x
		}
		if x > maxObs {
			maxObs = x
		}
	}
	lo := math.Max(speedFitMin, minObs)
	hi := math.Min(speedFitMax, maxObs)

	best, bestCost := 0.0, math.Inf(1)
	for s := lo; s <= hi+1e-9; s += 0.5 {
		p := polyval(coeffs, s)
		if p <= 0 {
			continue
		}
		if cost := p / s; cost < bestCost {
			best, bestCost = s, cost
		}
	}
	if math.IsInf(bestCost, 1) {
		return
	}

	r2 := rSquared(coeffs, xs, ys)
	conf := 0.5 * math.Min(1, float64(o.count)/100)
	if r2 > 0.5 {
		conf += 0.5 * math.Max(0, r2)
	}

	eff := 3600 * best / polyval(coeffs, best)
	if eff >= efficiencyCap || eff < 0 {
		eff = 0
	}

	o.result = OptimalSpeed{
		SpeedMS:         best,
		EfficiencyKmKWh: eff,
		Confidence:      conf,
		SampleCount:     o.count,
	}
	o.haveResult = true
}

// polyfit3 solves the degree-3 least-squares normal equations. Returns
// false when the system is singular, which happens with degenerate inputs
// such as constant speed.
func polyfit3(xs, ys []float64) ([4]float64, bool) {
	var sx [7]float64 // sums of x^0 .. x^6
	var sy [4]float64 // sums of y*x^0 .. y*x^3
	for i, x := range xs {
		xp := 1.0
		for k := 0; k < 7; k++ {
			sx[k] += xp
			if k < 4 {
				sy[k] += ys[i] * xp
			}
			xp *= x
		}
	}

	var m [4][5]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r][c] = sx[r+c]
		}
		m[r][4] = sy[r]
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return [4]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < 4; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < 5; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	var coeffs [4]float64
	for r := 3; r >= 0; r-- {
		v := m[r][4]
		for c := r + 1; c < 4; c++ {
			v -= m[r][c] * coeffs[c]
		}
		coeffs[r] = v / m[r][r]
	}
	return coeffs, true
}

func polyval(c [4]float64, x float64) float64 {
	return c[0] + x*(c[1]+x*(c[2]+x*c[3]))
}

func rSquared(c [4]float64, xs, ys []float64) float64 {
	var mean float64
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))

	var ssRes, ssTot float64
	for i, x := range xs {
		d := ys[i] - polyval(c, x)
		ssRes += d * d
		t := ys[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
