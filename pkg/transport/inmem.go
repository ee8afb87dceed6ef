// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package transport

import (
	"context"
	"sync"
)

// InmemBus is an in-process pub/sub hub. A single bus can back both the
// subscriber and publisher side, which is how the loopback tests drive the
// bridge end to end.
type InmemBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte

	published []PublishedEvent
}

// PublishedEvent records one Publish call on the bus.
type PublishedEvent struct {
	Channel string
	Event   string
	Payload map[string]interface{}
}

// NewInmemBus returns an empty bus.
func NewInmemBus() *InmemBus {
	return &InmemBus{subs: make(map[string][]chan []byte)}
}

// Send delivers a raw payload to every subscriber of the channel, dropping
// to slow consumers rather than blocking.
func (b *InmemBus) Send(channel string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Published returns a copy of every event published so far.
func (b *InmemBus) Published() []PublishedEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]PublishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

func (b *InmemBus) subscribe(channel string) chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch
}

func (b *InmemBus) unsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.subs, channel)
	}
}

func (b *InmemBus) record(e PublishedEvent) {
	b.mu.Lock()
	b.published = append(b.published, e)
	b.mu.Unlock()
}

// InmemConn adapts a bus endpoint to the Conn lifecycle. FailPublishes and
// FailConnects make fault paths testable.
type InmemConn struct {
	bus *InmemBus

	mu           sync.Mutex
	connected    bool
	failConnect  bool
	failPublish  bool
	publishCalls int
}

var (
	_ Subscriber = (*InmemConn)(nil)
	_ Publisher  = (*InmemConn)(nil)
)

// NewInmemConn returns a disconnected conn on the given bus.
func NewInmemConn(bus *InmemBus) *InmemConn {
	return &InmemConn{bus: bus}
}

// FailConnects toggles connect failures.
func (c *InmemConn) FailConnects(fail bool) {
	c.mu.Lock()
	c.failConnect = fail
	c.mu.Unlock()
}

// FailPublishes toggles publish failures.
func (c *InmemConn) FailPublishes(fail bool) {
	c.mu.Lock()
	c.failPublish = fail
	c.mu.Unlock()
}

// PublishCalls returns the number of Publish attempts, failed included.
func (c *InmemConn) PublishCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishCalls
}

// Connect implements Conn.
func (c *InmemConn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failConnect {
		return ErrNotConnected
	}
	c.connected = true
	return nil
}

// Disconnect implements Conn.
func (c *InmemConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

// Connected implements Conn.
func (c *InmemConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe implements Subscriber.
func (c *InmemConn) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if !c.Connected() {
		return nil, ErrNotConnected
	}
	return c.bus.subscribe(channel), nil
}

// Publish implements Publisher.
func (c *InmemConn) Publish(channel, event string, payload map[string]interface{}) error {
	c.mu.Lock()
	c.publishCalls++
	failed := c.failPublish || !c.connected
	c.mu.Unlock()
	if failed {
		return ErrNotConnected
	}
	c.bus.record(PublishedEvent{Channel: channel, Event: event, Payload: payload})
	return nil
}
