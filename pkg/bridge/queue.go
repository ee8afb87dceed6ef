// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package bridge

import "sync"

// republishQueue is the bounded in-memory queue between ingest and the sink
// path. When full, the oldest message is evicted so the stream stays fresh.
type republishQueue struct {
	mu      sync.Mutex
	items   []map[string]interface{}
	head    int
	count   int
	evicted int64
}

func newRepublishQueue(size int) *republishQueue {
	if size < 1 {
		size = 1
	}
	return &republishQueue{items: make([]map[string]interface{}, size)}
}

// push appends a message, evicting the oldest when full. Returns true when
// an eviction happened.
func (q *republishQueue) push(msg map[string]interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	evict := q.count == len(q.items)
	if evict {
		q.head = (q.head + 1) % len(q.items)
		q.count--
		q.evicted++
	}
	q.items[(q.head+q.count)%len(q.items)] = msg
	q.count++
	return evict
}

// popN removes and returns up to n oldest messages.
func (q *republishQueue) popN(n int) []map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > q.count {
		n = q.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[q.head]
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
	}
	q.count -= n
	return out
}

func (q *republishQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *republishQueue) evictions() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
