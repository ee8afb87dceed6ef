// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package journal persists every normalized sample to an append-only NDJSON
// spool file and exports it as CSV on demand.
package journal

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Journal is the session-scoped local spool. Appends are synchronous; every
// accepted record reaches the OS buffer before Append returns.
type Journal struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	file afero.File

	appended int64
}

// Open creates (or reopens for append) the spool file for a session.
func Open(fs afero.Fs, spoolDir, sessionID string) (*Journal, error) {
	if err := fs.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create spool dir: %w", err)
	}
	path := filepath.Join(spoolDir, sessionID+".ndjson")
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{fs: fs, path: path, file: f}, nil
}

// Path returns the spool file location.
func (j *Journal) Path() string { return j.path }

// Appended returns the number of records written so far.
func (j *Journal) Appended() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appended
}

// Append writes one record as a single JSON line.
func (j *Journal) Append(record map[string]interface{}) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return fmt.Errorf("journal: closed")
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	j.appended++
	return nil
}

// Iter calls fn for each stored record in append order. Malformed lines are
// counted and skipped.
func (j *Journal) Iter(fn func(map[string]interface{}) error) error {
	f, err := j.fs.Open(j.path)
	if err != nil {
		return fmt.Errorf("journal: open for read: %w", err)
	}
	defer f.Close()

	var skipped int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if skipped > 0 {
		_ = log.Warnf("journal: skipped %d malformed lines in %s", skipped, j.path)
	}
	return scanner.Err()
}

// ExportCSV writes the whole journal to path with the given column order.
// Missing fields become empty cells; extra fields are dropped.
func (j *Journal) ExportCSV(path string, fieldOrder []string) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := j.fs.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("journal: create export dir: %w", err)
		}
	}
	f, err := j.fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(fieldOrder); err != nil {
		return 0, err
	}
	rows := 0
	err = j.Iter(func(record map[string]interface{}) error {
		row := make([]string, len(fieldOrder))
		for i, field := range fieldOrder {
			if v, ok := record[field]; ok && v != nil {
				row[i] = cellString(v)
			}
		}
		rows++
		return w.Write(row)
	})
	if err != nil {
		return rows, err
	}
	w.Flush()
	return rows, w.Error()
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Integral floats print without a trailing .0, matching the inbound
		// JSON shape.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Close flushes and releases the spool file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}
