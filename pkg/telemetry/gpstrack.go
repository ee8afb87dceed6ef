// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package telemetry

// GPSPoint is one position fix with its capture time in seconds on the
// monotonic clock.
type GPSPoint struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Time float64
}

// GPSTrackWindow is a circular buffer of the most recent GPS points.
type GPSTrackWindow struct {
	points []GPSPoint
	size   int
	index  int
	count  int
}

// NewGPSTrackWindow returns a track window of the given capacity.
func NewGPSTrackWindow(size int) *GPSTrackWindow {
	if size < 2 {
		size = 2
	}
	return &GPSTrackWindow{points: make([]GPSPoint, size), size: size}
}

// Push records a point.
func (t *GPSTrackWindow) Push(p GPSPoint) {
	t.points[t.index] = p
	t.index = (t.index + 1) % t.size
	if t.count < t.size {
		t.count++
	}
}

// Count returns the number of stored points.
func (t *GPSTrackWindow) Count() int { return t.count }

// Previous returns the point before the most recent write, or false when
// fewer than 2 points have been written.
func (t *GPSTrackWindow) Previous() (GPSPoint, bool) {
	if t.count < 2 {
		return GPSPoint{}, false
	}
	prev := (t.index - 2 + t.size*2) % t.size
	return t.points[prev], true
}

// Last returns the most recent point, or false when empty.
func (t *GPSTrackWindow) Last() (GPSPoint, bool) {
	if t.count == 0 {
		return GPSPoint{}, false
	}
	last := (t.index - 1 + t.size) % t.size
	return t.points[last], true
}

// Reset clears the track.
func (t *GPSTrackWindow) Reset() {
	t.index = 0
	t.count = 0
}
