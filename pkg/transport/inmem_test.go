// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRequiresConnect(t *testing.T) {
	bus := NewInmemBus()
	conn := NewInmemConn(bus)
	_, err := conn.Subscribe(context.Background(), "ch")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendReachesSubscriber(t *testing.T) {
	bus := NewInmemBus()
	conn := NewInmemConn(bus)
	require.NoError(t, conn.Connect(context.Background()))

	stream, err := conn.Subscribe(context.Background(), "ch")
	require.NoError(t, err)

	bus.Send("ch", []byte("one"))
	bus.Send("other", []byte("two"))

	assert.Equal(t, []byte("one"), <-stream)
	select {
	case payload := <-stream:
		t.Fatalf("unexpected payload %q", payload)
	default:
	}
}

func TestPublishRecordsEvents(t *testing.T) {
	bus := NewInmemBus()
	conn := NewInmemConn(bus)
	require.NoError(t, conn.Connect(context.Background()))

	require.NoError(t, conn.Publish("dash", "telemetry_update", map[string]interface{}{"a": 1}))
	events := bus.Published()
	require.Len(t, events, 1)
	assert.Equal(t, "dash", events[0].Channel)
	assert.Equal(t, "telemetry_update", events[0].Event)
	assert.Equal(t, 1, events[0].Payload["a"])
	assert.Equal(t, 1, conn.PublishCalls())
}

func TestPublishFailureModes(t *testing.T) {
	bus := NewInmemBus()
	conn := NewInmemConn(bus)

	// Disconnected conns refuse publishes.
	assert.ErrorIs(t, conn.Publish("ch", "ev", nil), ErrNotConnected)

	require.NoError(t, conn.Connect(context.Background()))
	conn.FailPublishes(true)
	assert.Error(t, conn.Publish("ch", "ev", nil))
	conn.FailPublishes(false)
	assert.NoError(t, conn.Publish("ch", "ev", nil))
}

func TestConnectFailureAndRecovery(t *testing.T) {
	bus := NewInmemBus()
	conn := NewInmemConn(bus)
	conn.FailConnects(true)
	assert.Error(t, conn.Connect(context.Background()))
	assert.False(t, conn.Connected())

	conn.FailConnects(false)
	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.Connected())

	require.NoError(t, conn.Disconnect())
	assert.False(t, conn.Connected())
}
