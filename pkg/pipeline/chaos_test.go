// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package pipeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChosF/TelemetryDashboard/pkg/mock"
)

// Feeds two thousand chaos-scenario ticks through the full normalize path
// and checks that fault injection actually surfaces as outlier reports.
func TestChaosScenarioThroughPipeline(t *testing.T) {
	mockClock := clock.NewMock()
	gen := mock.NewGenerator(
		mock.ConfigForScenario(mock.ScenarioChaos),
		"sess-chaos", "Chaos Session",
		mock.WithRand(rand.New(rand.NewSource(1234))),
		mock.WithClock(mockClock),
	)
	norm := NewNormalizer("sess-chaos", "Chaos Session")

	const ticks = 2000
	processed := 0
	flagged := 0
	for i := 0; i < ticks; i++ {
		// Two-second tick spacing keeps each stall window at a few ticks.
		mockClock.Add(2 * time.Second)
		s := gen.Generate()
		if s == nil {
			continue
		}
		out := norm.Normalize(s)
		require.NotNil(t, out)
		assert.Equal(t, "MOCK_CHAOS", out.DataSource)
		processed++
		if out.Outliers != nil {
			flagged++
		}
	}

	returned := float64(processed) / float64(ticks)
	assert.GreaterOrEqual(t, returned, 0.80, "returned ratio %.3f", returned)
	assert.LessOrEqual(t, returned, 0.98, "returned ratio %.3f", returned)

	flagRate := float64(flagged) / float64(processed)
	assert.GreaterOrEqual(t, flagRate, 0.05,
		"injected faults should flag at least 5%% of samples (got %.1f%%)", flagRate*100)

	stats := norm.DetectorStats()
	assert.Equal(t, int64(processed), stats.TotalMessages)
	assert.Equal(t, int64(flagged), stats.MessagesWithFlags)
	assert.NotEmpty(t, stats.ByField)

	genStats := gen.Stats()
	assert.Equal(t, int64(processed), genStats.MessagesGenerated)
	assert.Greater(t, genStats.MessagesDropped, int64(0))
	assert.Greater(t, genStats.SensorFailures, int64(0))
	assert.Greater(t, genStats.GPSJumps, int64(0))
	assert.Greater(t, genStats.Stalls, int64(0))
}

func TestNormalScenarioStaysMostlyClean(t *testing.T) {
	gen := mock.NewGenerator(
		mock.ConfigForScenario(mock.ScenarioNormal),
		"sess-clean", "Clean Session",
		mock.WithRand(rand.New(rand.NewSource(7))),
	)
	norm := NewNormalizer("sess-clean", "Clean Session")

	flagged := 0
	const ticks = 500
	for i := 0; i < ticks; i++ {
		s := gen.Generate()
		require.NotNil(t, s)
		if norm.Normalize(s).Outliers != nil {
			flagged++
		}
	}
	// Noise occasionally trips the statistical checks; faults would flag far more.
	assert.Less(t, float64(flagged)/ticks, 0.25)
}
