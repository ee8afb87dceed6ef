// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// power = 50 + 2v^2 makes energy per meter 50/v + 2v, minimized at v = 5.
func quadPower(v float64) float64 { return 50 + 2*v*v }

func TestOptimizerFindsKnownOptimum(t *testing.T) {
	o := NewOptimizer()
	for i := 0; i < 60; i++ {
		v := 2.0 + float64(i%57)*0.5
		o.Add(v, quadPower(v))
	}
	res, ok := o.Result()
	require.True(t, ok)
	assert.InDelta(t, 5.0, res.SpeedMS, 0.51)
	assert.Greater(t, res.Confidence, 0.5)
	assert.Greater(t, res.EfficiencyKmKWh, 0.0)
	assert.Less(t, res.EfficiencyKmKWh, 500.0)
}

func TestOptimizerFiltersOutOfRange(t *testing.T) {
	o := NewOptimizer()
	o.Add(1.0, 100)   // too slow
	o.Add(35.0, 100)  // too fast
	o.Add(10.0, 0)    // no load
	o.Add(10.0, -5)   // negative power
	o.Add(10.0, 20000) // beyond cap
	assert.Equal(t, 0, o.count)
}

func TestOptimizerNeedsMinimumData(t *testing.T) {
	o := NewOptimizer()
	for i := 0; i < 25; i++ {
		v := 2.0 + float64(i)*0.5
		o.Add(v, quadPower(v))
	}
	_, ok := o.Result()
	assert.False(t, ok)
}

func TestOptimizerSingularFit(t *testing.T) {
	o := NewOptimizer()
	// Constant speed makes the normal equations singular; no estimate.
	for i := 0; i < 50; i++ {
		o.Add(10.0, 500.0)
	}
	_, ok := o.Result()
	assert.False(t, ok)
}

func TestOptimizerReset(t *testing.T) {
	o := NewOptimizer()
	for i := 0; i < 60; i++ {
		v := 2.0 + float64(i%57)*0.5
		o.Add(v, quadPower(v))
	}
	_, ok := o.Result()
	require.True(t, ok)

	o.Reset()
	_, ok = o.Result()
	assert.False(t, ok)
	assert.Equal(t, 0, o.count)
}

func TestPolyfitRecoversCubic(t *testing.T) {
	want := [4]float64{1, -2, 0.5, 0.01}
	xs := make([]float64, 40)
	ys := make([]float64, 40)
	for i := range xs {
		x := 2.0 + float64(i)*0.7
		xs[i] = x
		ys[i] = polyval(want, x)
	}
	got, ok := polyfit3(xs, ys)
	require.True(t, ok)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}
	assert.InDelta(t, 1.0, rSquared(got, xs, ys), 1e-9)
}
