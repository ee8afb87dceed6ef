// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package transport defines the realtime messaging seam between the bridge
// and its source and sink channels, plus an in-process implementation used
// by tests and local runs.
package transport

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by operations on a disconnected conn.
var ErrNotConnected = errors.New("transport: not connected")

// Conn is the lifecycle shared by both directions of the bridge.
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
}

// Subscriber is the inbound side: raw payloads from the vehicle feed.
type Subscriber interface {
	Conn

	// Subscribe returns the payload stream for a channel. The stream is
	// closed on disconnect.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Publisher is the outbound side: named events carrying a flat record.
type Publisher interface {
	Conn

	Publish(channel, event string, payload map[string]interface{}) error
}
