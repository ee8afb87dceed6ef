// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package telemetry

import "math"

// RollingWindow is a fixed-capacity circular float buffer with cached
// rolling statistics. Not safe for concurrent use; the ingest path is its
// only writer.
type RollingWindow struct {
	buf   []float64
	size  int
	index int
	count int

	meanCache float64
	stdCache  float64
	dirty     bool
}

// NewRollingWindow returns a window of the given capacity.
func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{buf: make([]float64, size), size: size, dirty: true}
}

// Push appends a value, overwriting the oldest once full.
func (w *RollingWindow) Push(v float64) {
	w.buf[w.index] = v
	w.index = (w.index + 1) % w.size
	if w.count < w.size {
		w.count++
	}
	w.dirty = true
}

// Count returns the number of stored values, at most the capacity.
func (w *RollingWindow) Count() int { return w.count }

// Mean returns the rolling mean, 0 when empty.
func (w *RollingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	if w.dirty {
		w.updateStats()
	}
	return w.meanCache
}

// Std returns the population standard deviation, 0 below 2 samples.
func (w *RollingWindow) Std() float64 {
	if w.count < 2 {
		return 0
	}
	if w.dirty {
		w.updateStats()
	}
	return w.stdCache
}

func (w *RollingWindow) updateStats() {
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	mean := sum / float64(w.count)
	var sq float64
	for i := 0; i < w.count; i++ {
		d := w.buf[i] - mean
		sq += d * d
	}
	w.meanCache = mean
	if w.count > 1 {
		w.stdCache = math.Sqrt(sq / float64(w.count))
	} else {
		w.stdCache = 0
	}
	w.dirty = false
}

// LastN returns the min(n, count) most recent values in push order.
func (w *RollingWindow) LastN(n int) []float64 {
	if w.count == 0 || n <= 0 {
		return nil
	}
	if n > w.count {
		n = w.count
	}
	out := make([]float64, n)
	// index points at the next write slot, so the newest value sits just
	// behind it.
	for i := 0; i < n; i++ {
		pos := (w.index - n + i + w.size*2) % w.size
		out[i] = w.buf[pos]
	}
	return out
}

// Reset clears the buffer and counters.
func (w *RollingWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.index = 0
	w.count = 0
	w.dirty = true
}
