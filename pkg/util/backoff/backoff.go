// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package backoff holds the delay policies shared by the reconnect loops and
// the database retry queue.
package backoff

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy computes the delay before a retry attempt. Attempts are counted
// from zero.
type Policy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewPolicy returns a Policy doubling baseDelay per attempt, capped at
// maxDelay.
func NewPolicy(baseDelay, maxDelay time.Duration) *Policy {
	return &Policy{baseDelay: baseDelay, maxDelay: maxDelay}
}

// Delay returns baseDelay * 2^attempt clipped at maxDelay.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.maxDelay) || d < 0 {
		return p.maxDelay
	}
	return time.Duration(d)
}

// NewExponential returns a cenkalti backoff suitable for wrapping one-shot
// operations such as the initial connect. Randomization is disabled so the
// delay sequence stays the documented geometric one.
func NewExponential(baseDelay, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
