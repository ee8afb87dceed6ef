// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package publisher rate-limits outbound sink traffic behind a token bucket
// with a bounded overflow queue.
package publisher

import (
	"container/list"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ChosF/TelemetryDashboard/pkg/transport"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

// Defaults match the sink provider's account limits with headroom.
const (
	DefaultRate         = 500
	DefaultBurst        = 100
	DefaultQueueMaxSize = 10000
)

// Stats is a snapshot of the publisher counters.
type Stats struct {
	QueueDepth      int     `json:"queue_depth"`
	MaxQueueDepth   int     `json:"max_queue_depth_reached"`
	BurstEvents     int64   `json:"burst_events"`
	Delayed         int64   `json:"messages_delayed"`
	Dropped         int64   `json:"messages_dropped"`
	Published       int64   `json:"messages_published"`
	SendFailures    int64   `json:"send_failures"`
	DrainCycles     int64   `json:"drain_cycles"`
	AvailableTokens float64 `json:"available_tokens"`
}

// RateLimited fronts a transport publisher with a token bucket. Messages
// beyond the bucket capacity overflow into a bounded FIFO that Drain empties
// as tokens come back.
type RateLimited struct {
	sink    transport.Publisher
	limiter *rate.Limiter

	mu           sync.Mutex
	queue        *list.List
	queueMaxSize int

	burstEvents   int64
	delayed       int64
	dropped       int64
	published     int64
	sendFailures  int64
	drainCycles   int64
	maxQueueDepth int
}

type queued struct {
	payload map[string]interface{}
}

// NewRateLimited wraps sink with the given bucket parameters. Non-positive
// arguments fall back to the defaults.
func NewRateLimited(sink transport.Publisher, ratePerSec float64, burst, queueMaxSize int) *RateLimited {
	if ratePerSec <= 0 {
		ratePerSec = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if queueMaxSize <= 0 {
		queueMaxSize = DefaultQueueMaxSize
	}
	return &RateLimited{
		sink:         sink,
		limiter:      rate.NewLimiter(rate.Limit(ratePerSec), burst),
		queue:        list.New(),
		queueMaxSize: queueMaxSize,
	}
}

// Publish sends immediately when a token is available, otherwise queues.
// Returns false only when the message was dropped on a full queue.
func (p *RateLimited) Publish(channel, event string, payload map[string]interface{}) bool {
	if p.limiter.Allow() {
		if err := p.sink.Publish(channel, event, payload); err != nil {
			_ = log.Errorf("rate limiter publish failed: %v", err)
			p.mu.Lock()
			p.sendFailures++
			p.mu.Unlock()
			return p.enqueue(payload)
		}
		p.mu.Lock()
		p.published++
		p.mu.Unlock()
		return true
	}

	p.mu.Lock()
	p.delayed++
	if p.delayed%100 == 1 {
		p.burstEvents++
		_ = log.Warnf("rate limit burst, queueing messages (depth: %d)", p.queue.Len())
	}
	p.mu.Unlock()
	return p.enqueue(payload)
}

// Drain publishes queued messages while tokens permit. A send failure
// re-enqueues the message and stops the pass.
func (p *RateLimited) Drain(channel, event string) {
	p.mu.Lock()
	p.drainCycles++
	p.mu.Unlock()

	for {
		p.mu.Lock()
		front := p.queue.Front()
		if front == nil {
			p.mu.Unlock()
			return
		}
		if !p.limiter.Allow() {
			p.mu.Unlock()
			return
		}
		p.queue.Remove(front)
		p.mu.Unlock()

		msg := front.Value.(queued)
		if err := p.sink.Publish(channel, event, msg.payload); err != nil {
			_ = log.Errorf("drain publish failed: %v", err)
			p.mu.Lock()
			p.sendFailures++
			p.mu.Unlock()
			p.requeueFront(msg)
			return
		}
		p.mu.Lock()
		p.published++
		p.mu.Unlock()
	}
}

// QueueDepth returns the overflow queue length.
func (p *RateLimited) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Stats returns a snapshot of the counters.
func (p *RateLimited) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueDepth:      p.queue.Len(),
		MaxQueueDepth:   p.maxQueueDepth,
		BurstEvents:     p.burstEvents,
		Delayed:         p.delayed,
		Dropped:         p.dropped,
		Published:       p.published,
		SendFailures:    p.sendFailures,
		DrainCycles:     p.drainCycles,
		AvailableTokens: p.limiter.Tokens(),
	}
}

// ResetStats zeroes the counters for a new session. The queue and bucket
// are left as they are.
func (p *RateLimited) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.burstEvents = 0
	p.delayed = 0
	p.dropped = 0
	p.published = 0
	p.sendFailures = 0
	p.drainCycles = 0
	p.maxQueueDepth = p.queue.Len()
}

func (p *RateLimited) enqueue(payload map[string]interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() >= p.queueMaxSize {
		p.dropped++
		return false
	}
	p.queue.PushBack(queued{payload: payload})
	if depth := p.queue.Len(); depth > p.maxQueueDepth {
		p.maxQueueDepth = depth
	}
	return true
}

// requeueFront puts a failed drain message back at the head so ordering is
// preserved; when the queue filled up in the meantime the message is lost.
func (p *RateLimited) requeueFront(msg queued) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() >= p.queueMaxSize {
		p.dropped++
		return
	}
	p.queue.PushFront(msg)
}
