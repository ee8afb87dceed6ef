// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package bridge

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
	uatomic "go.uber.org/atomic"
)

// counters are the bridge-level totals, updated from several goroutines.
type counters struct {
	received       uatomic.Int64
	processed      uatomic.Int64
	parseErrors    uatomic.Int64
	invalid        uatomic.Int64
	journalErrors  uatomic.Int64
	republished    uatomic.Int64
	dbRowsWritten  uatomic.Int64
	dbBatchesOK    uatomic.Int64
	dbFailures     uatomic.Int64
	sourceRecon    uatomic.Int64
	sinkRecon      uatomic.Int64
	watchdogTrips  uatomic.Int64
}

// StatsSnapshot is the exported view of the counters.
type StatsSnapshot struct {
	Received          int64 `json:"messages_received"`
	Processed         int64 `json:"messages_processed"`
	ParseErrors       int64 `json:"parse_errors"`
	Invalid           int64 `json:"invalid_messages"`
	JournalErrors     int64 `json:"journal_errors"`
	Republished       int64 `json:"messages_republished"`
	QueueEvictions    int64 `json:"queue_evictions"`
	DBRowsWritten     int64 `json:"db_rows_written"`
	DBBatchesOK       int64 `json:"db_batches_ok"`
	DBFailures        int64 `json:"db_write_failures"`
	SourceReconnects  int64 `json:"source_reconnects"`
	SinkReconnects    int64 `json:"sink_reconnects"`
	WatchdogTrips     int64 `json:"watchdog_trips"`
	RetryQueueBatches int   `json:"retry_queue_batches"`
	DBBufferRows      int   `json:"db_buffer_rows"`
	RepublishQueue    int   `json:"republish_queue_depth"`
}

// rssBytes returns the process resident set size, 0 when unavailable.
func rssBytes() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
