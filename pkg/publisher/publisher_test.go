// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChosF/TelemetryDashboard/pkg/transport"
)

func newConnected(t *testing.T, bus *transport.InmemBus) *transport.InmemConn {
	t.Helper()
	conn := transport.NewInmemConn(bus)
	require.NoError(t, conn.Connect(context.Background()))
	return conn
}

func msg(id int) map[string]interface{} {
	return map[string]interface{}{"message_id": id}
}

func TestPublishWithinBurst(t *testing.T) {
	bus := transport.NewInmemBus()
	p := NewRateLimited(newConnected(t, bus), 500, 10, 100)

	for i := 0; i < 10; i++ {
		assert.True(t, p.Publish("ch", "ev", msg(i)))
	}
	assert.Len(t, bus.Published(), 10)
	assert.Equal(t, int64(10), p.Stats().Published)
	assert.Equal(t, 0, p.Stats().QueueDepth)
}

func TestPublishOverBurstQueues(t *testing.T) {
	bus := transport.NewInmemBus()
	// Near-zero refill keeps the bucket empty after the burst.
	p := NewRateLimited(newConnected(t, bus), 1e-9, 5, 100)

	for i := 0; i < 8; i++ {
		assert.True(t, p.Publish("ch", "ev", msg(i)))
	}
	st := p.Stats()
	assert.Equal(t, int64(5), st.Published)
	assert.Equal(t, 3, st.QueueDepth)
	assert.Equal(t, int64(3), st.Delayed)
	assert.Equal(t, int64(1), st.BurstEvents)
}

func TestPublishDropsOnFullQueue(t *testing.T) {
	bus := transport.NewInmemBus()
	p := NewRateLimited(newConnected(t, bus), 1e-9, 1, 2)

	assert.True(t, p.Publish("ch", "ev", msg(0))) // token
	assert.True(t, p.Publish("ch", "ev", msg(1))) // queued
	assert.True(t, p.Publish("ch", "ev", msg(2))) // queued
	assert.False(t, p.Publish("ch", "ev", msg(3))) // dropped

	st := p.Stats()
	assert.Equal(t, int64(1), st.Dropped)
	assert.Equal(t, 2, st.QueueDepth)
}

func TestPublishFailureEnqueuesForRetry(t *testing.T) {
	bus := transport.NewInmemBus()
	conn := newConnected(t, bus)
	conn.FailPublishes(true)
	p := NewRateLimited(conn, 500, 10, 100)

	p.Publish("ch", "ev", msg(0))
	st := p.Stats()
	assert.Equal(t, int64(0), st.Published)
	assert.Equal(t, 1, st.QueueDepth)
}

func TestDrainEmptiesQueue(t *testing.T) {
	bus := transport.NewInmemBus()
	conn := newConnected(t, bus)
	p := NewRateLimited(conn, 1e-9, 3, 100)

	for i := 0; i < 8; i++ {
		p.Publish("ch", "ev", msg(i))
	}
	require.Equal(t, 5, p.QueueDepth())

	// Refill the bucket so the drain has tokens again.
	p.limiter.SetLimit(500)
	p.limiter.SetBurst(100)

	p.Drain("ch", "ev")
	st := p.Stats()
	assert.Equal(t, 0, st.QueueDepth)
	assert.Equal(t, int64(8), st.Published)
	assert.Equal(t, int64(1), st.DrainCycles)
	assert.Len(t, bus.Published(), 8)
}

func TestDrainStopsOnSendFailure(t *testing.T) {
	bus := transport.NewInmemBus()
	conn := newConnected(t, bus)
	p := NewRateLimited(conn, 1e-9, 2, 100)

	for i := 0; i < 6; i++ {
		p.Publish("ch", "ev", msg(i))
	}
	require.Equal(t, 4, p.QueueDepth())

	p.limiter.SetLimit(500)
	p.limiter.SetBurst(100)
	conn.FailPublishes(true)

	p.Drain("ch", "ev")
	// The failed message went back to the head; nothing was lost.
	assert.Equal(t, 4, p.QueueDepth())
	assert.Equal(t, int64(0), p.Stats().Dropped)
}

func TestDrainPreservesOrder(t *testing.T) {
	bus := transport.NewInmemBus()
	conn := newConnected(t, bus)
	p := NewRateLimited(conn, 1e-9, 1, 100)

	for i := 0; i < 4; i++ {
		p.Publish("ch", "ev", msg(i))
	}
	p.limiter.SetLimit(500)
	p.limiter.SetBurst(100)
	p.Drain("ch", "ev")

	events := bus.Published()
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, i, e.Payload["message_id"])
	}
}

func TestStatsTokens(t *testing.T) {
	bus := transport.NewInmemBus()
	p := NewRateLimited(newConnected(t, bus), 500, 100, 1000)
	assert.InDelta(t, 100, p.Stats().AvailableTokens, 1.0)
	p.Publish("ch", "ev", msg(0))
	assert.Less(t, p.Stats().AvailableTokens, 100.0)
}
