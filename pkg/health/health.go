// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package health tracks per-channel connection liveness: message recency,
// reconnect accounting and a decaying error rate.
package health

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Tracker holds the health state of one channel. Safe for concurrent use.
type Tracker struct {
	clk clock.Clock

	mu                   sync.Mutex
	connected            bool
	lastMessageTime      time.Time
	haveMessage          bool
	reconnectAttempts    int
	totalReconnects      int
	messagesSinceConnect int64
	errorCount           int64
	errorRate            float64
	lastErrorTime        time.Time
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Connected            bool    `json:"connected"`
	ReconnectAttempts    int     `json:"reconnect_attempts"`
	TotalReconnects      int     `json:"total_reconnects"`
	MessagesSinceConnect int64   `json:"messages_since_connect"`
	ErrorCount           int64   `json:"error_count"`
	ErrorRate            float64 `json:"error_rate_per_min"`
	SecondsSinceMessage  float64 `json:"seconds_since_message"`
}

// NewTracker returns a disconnected tracker on the real clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(clock.New())
}

// NewTrackerWithClock returns a tracker on the given clock.
func NewTrackerWithClock(clk clock.Clock) *Tracker {
	return &Tracker{clk: clk}
}

// MarkConnected records a successful connect: attempts reset, totals advance.
func (t *Tracker) MarkConnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.reconnectAttempts = 0
	t.totalReconnects++
	t.messagesSinceConnect = 0
}

// MarkDisconnected flips the connected flag.
func (t *Tracker) MarkDisconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// Connected reports the current flag.
func (t *Tracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// RecordMessage notes one received or sent message.
func (t *Tracker) RecordMessage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastMessageTime = t.clk.Now()
	t.haveMessage = true
	t.messagesSinceConnect++
}

// IsStale reports whether a message has ever been seen and none arrived
// within timeout. A channel with no traffic yet is never stale.
func (t *Tracker) IsStale(timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveMessage {
		return false
	}
	return t.clk.Now().Sub(t.lastMessageTime) > timeout
}

// RecordError counts one error and updates the decaying per-minute rate:
// after a quiet minute the rate restarts at 1, otherwise it climbs, capped
// at 100.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	t.errorCount++
	if !t.lastErrorTime.IsZero() && now.Sub(t.lastErrorTime) > time.Minute {
		t.errorRate = 1
	} else if t.errorRate < 100 {
		t.errorRate++
	}
	t.lastErrorTime = now
}

// RecordReconnectAttempt advances the attempt counter and returns its new
// value.
func (t *Tracker) RecordReconnectAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reconnectAttempts++
	return t.reconnectAttempts
}

// ReconnectAttempts returns the current attempt counter.
func (t *Tracker) ReconnectAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnectAttempts
}

// ResetForReconnect zeroes the session-scoped counters ahead of a reconnect
// cycle. Attempt and total counters survive.
func (t *Tracker) ResetForReconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.messagesSinceConnect = 0
	t.errorRate = 0
	t.haveMessage = false
}

// Stats returns a snapshot.
func (t *Tracker) Stats() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Connected:            t.connected,
		ReconnectAttempts:    t.reconnectAttempts,
		TotalReconnects:      t.totalReconnects,
		MessagesSinceConnect: t.messagesSinceConnect,
		ErrorCount:           t.errorCount,
		ErrorRate:            t.errorRate,
	}
	if t.haveMessage {
		s.SecondsSinceMessage = t.clk.Now().Sub(t.lastMessageTime).Seconds()
	}
	return s
}
