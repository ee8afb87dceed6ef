// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package database writes telemetry rows to the remote store in batches.
package database

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is one flat database record.
type Row = map[string]interface{}

// BatchWriter persists row batches. Implementations must be safe for use
// from the DB writer goroutine plus the shutdown path.
type BatchWriter interface {
	WriteBatch(ctx context.Context, rows []Row) error
	Close() error
}

// RESTClient writes batches over the store's REST endpoint
// (POST <url>/rest/v1/<table>).
type RESTClient struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// NewRESTClient returns a client for the given project URL and table.
func NewRESTClient(baseURL, apiKey, table string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		table:   table,
		client:  &http.Client{Timeout: timeout},
	}
}

// WriteBatch inserts rows in one request.
func (c *RESTClient) WriteBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("database: marshal batch: %w", err)
	}
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("database: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("database: insert failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("database: insert returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Close implements BatchWriter.
func (c *RESTClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// MemWriter is an in-memory BatchWriter for tests and offline runs. Fail
// makes every write error until cleared.
type MemWriter struct {
	mu      sync.Mutex
	rows    []Row
	batches int
	fail    bool
}

// NewMemWriter returns an empty writer.
func NewMemWriter() *MemWriter { return &MemWriter{} }

// Fail toggles write failures.
func (m *MemWriter) Fail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// WriteBatch implements BatchWriter.
func (m *MemWriter) WriteBatch(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("database: write refused")
	}
	m.rows = append(m.rows, rows...)
	m.batches++
	return nil
}

// Rows returns a copy of everything written.
func (m *MemWriter) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Batches returns the number of successful WriteBatch calls.
func (m *MemWriter) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// Close implements BatchWriter.
func (m *MemWriter) Close() error { return nil }
