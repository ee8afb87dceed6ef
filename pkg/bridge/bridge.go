// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package bridge orchestrates the telemetry pipeline: ingest from the live
// or mock source, normalization, local journaling, rate-limited
// republication to the dashboard sink and batched database writes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	cbackoff "github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/ChosF/TelemetryDashboard/pkg/database"
	"github.com/ChosF/TelemetryDashboard/pkg/health"
	"github.com/ChosF/TelemetryDashboard/pkg/journal"
	"github.com/ChosF/TelemetryDashboard/pkg/mock"
	"github.com/ChosF/TelemetryDashboard/pkg/pipeline"
	"github.com/ChosF/TelemetryDashboard/pkg/publisher"
	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
	"github.com/ChosF/TelemetryDashboard/pkg/transport"
	"github.com/ChosF/TelemetryDashboard/pkg/util/backoff"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

// failedBatch is one chunk awaiting a database retry.
type failedBatch struct {
	rows      []database.Row
	nextRetry time.Time
}

// Bridge owns every long-lived component and runs the cooperative task set.
type Bridge struct {
	opts Options

	source transport.Subscriber
	sink   transport.Publisher
	db     database.BatchWriter
	fs     afero.Fs
	clk    clock.Clock

	normalizer *pipeline.Normalizer
	journal    *journal.Journal
	pub        *publisher.RateLimited
	generator  *mock.Generator

	sourceHealth *health.Tracker
	sinkHealth   *health.Tracker

	queue *republishQueue

	dbMu     sync.Mutex
	dbBuffer []database.Row

	retryMu    sync.Mutex
	retryQueue []failedBatch
	retryExp   *cbackoff.ExponentialBackOff

	reconnectPolicy *backoff.Policy

	// One in-flight reconnect per channel.
	sourceReconnecting uatomic.Bool
	sinkReconnecting   uatomic.Bool

	running uatomic.Bool
	cancel  context.CancelFunc

	stats            counters
	lastSendFailures int64
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithClock injects the clock driving every periodic task.
func WithClock(clk clock.Clock) Option {
	return func(b *Bridge) { b.clk = clk }
}

// WithGenerator injects a preconfigured mock generator.
func WithGenerator(g *mock.Generator) Option {
	return func(b *Bridge) { b.generator = g }
}

// New assembles a bridge. source may be nil in mock mode; db may be nil
// when no database is configured.
func New(opts Options, source transport.Subscriber, sink transport.Publisher, db database.BatchWriter, fs afero.Fs, bOpts ...Option) (*Bridge, error) {
	opts.applyDefaults()
	if opts.SessionID == "" {
		return nil, fmt.Errorf("bridge: session id is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("bridge: sink is required")
	}
	if !opts.MockMode && source == nil {
		return nil, fmt.Errorf("bridge: source is required outside mock mode")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	j, err := journal.Open(fs, opts.SpoolDir, opts.SessionID)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		opts:            opts,
		source:          source,
		sink:            sink,
		db:              db,
		fs:              fs,
		clk:             clock.New(),
		normalizer:      pipeline.NewNormalizer(opts.SessionID, opts.SessionName),
		journal:         j,
		pub:             publisher.NewRateLimited(sink, opts.PublishRate, opts.PublishBurst, opts.PublishQueueMax),
		sourceHealth:    health.NewTracker(),
		sinkHealth:      health.NewTracker(),
		queue:           newRepublishQueue(opts.QueueMaxSize),
		retryExp:        backoff.NewExponential(opts.RetryBaseBackoff, opts.RetryBackoffMax),
		reconnectPolicy: backoff.NewPolicy(opts.ReconnectBaseDelay, opts.RetryBackoffMax),
	}
	for _, o := range bOpts {
		o(b)
	}
	if opts.MockMode && b.generator == nil {
		b.generator = mock.NewGenerator(
			mock.ConfigForScenario(opts.MockScenario),
			opts.SessionID, opts.SessionName,
			mock.WithInterval(opts.MockInterval),
		)
	}
	return b, nil
}

// Run connects the channels, starts the task set and blocks until ctx is
// cancelled or Stop is called, then performs the shutdown sequence.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	if !b.opts.MockMode {
		if err := b.source.Connect(ctx); err != nil {
			return fmt.Errorf("bridge: source connect: %w", err)
		}
		b.sourceHealth.MarkConnected()
	}
	if err := b.sink.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: sink connect: %w", err)
	}
	b.sinkHealth.MarkConnected()

	b.running.Store(true)
	log.Infof("bridge started: session=%s mock=%v scenario=%s",
		b.opts.SessionID, b.opts.MockMode, b.opts.MockScenario)

	g, taskCtx := errgroup.WithContext(ctx)
	if b.opts.MockMode {
		g.Go(func() error { return b.mockTask(taskCtx) })
	} else {
		g.Go(func() error { return b.ingestTask(taskCtx) })
	}
	g.Go(func() error { return b.republishTask(taskCtx) })
	g.Go(func() error { return b.dbWriterTask(taskCtx) })
	g.Go(func() error { return b.healthMonitorTask(taskCtx) })
	g.Go(func() error { return b.statsTask(taskCtx) })

	runErr := g.Wait()
	b.running.Store(false)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if err := b.shutdown(); err != nil {
		runErr = multierror.Append(runErr, err).ErrorOrNil()
	}
	return runErr
}

// Stop signals the task set to exit. Safe to call more than once.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Running reports whether the task set is active.
func (b *Bridge) Running() bool { return b.running.Load() }

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() StatsSnapshot {
	b.retryMu.Lock()
	retryLen := len(b.retryQueue)
	b.retryMu.Unlock()
	b.dbMu.Lock()
	bufLen := len(b.dbBuffer)
	b.dbMu.Unlock()
	return StatsSnapshot{
		Received:          b.stats.received.Load(),
		Processed:         b.stats.processed.Load(),
		ParseErrors:       b.stats.parseErrors.Load(),
		Invalid:           b.stats.invalid.Load(),
		JournalErrors:     b.stats.journalErrors.Load(),
		Republished:       b.stats.republished.Load(),
		QueueEvictions:    b.queue.evictions(),
		DBRowsWritten:     b.stats.dbRowsWritten.Load(),
		DBBatchesOK:       b.stats.dbBatchesOK.Load(),
		DBFailures:        b.stats.dbFailures.Load(),
		SourceReconnects:  b.stats.sourceRecon.Load(),
		SinkReconnects:    b.stats.sinkRecon.Load(),
		WatchdogTrips:     b.stats.watchdogTrips.Load(),
		RetryQueueBatches: retryLen,
		DBBufferRows:      bufLen,
		RepublishQueue:    b.queue.len(),
	}
}

// JournalPath returns the spool file location.
func (b *Bridge) JournalPath() string { return b.journal.Path() }

// shutdown flushes the database buffer, exports the journal when rows may
// have been lost, and closes every resource.
func (b *Bridge) shutdown() error {
	var result *multierror.Error

	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b.flushRetryQueue(flushCtx, true)
	if err := b.flushDBBuffer(flushCtx); err != nil {
		result = multierror.Append(result, err)
	}

	b.retryMu.Lock()
	residue := len(b.retryQueue)
	b.retryMu.Unlock()
	if residue > 0 || b.stats.dbFailures.Load() > 0 {
		if path, err := b.exportJournal(); err != nil {
			result = multierror.Append(result, err)
		} else {
			log.Infof("journal exported to %s (%d batches undelivered)", path, residue)
		}
	}

	if b.source != nil {
		if err := b.source.Disconnect(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := b.sink.Disconnect(); err != nil {
		result = multierror.Append(result, err)
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := b.journal.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	log.Info("bridge stopped")
	log.Flush()
	return result.ErrorOrNil()
}

func (b *Bridge) exportJournal() (string, error) {
	name := fmt.Sprintf("telemetry_%s_%s.csv", b.opts.SessionID, time.Now().Format("20060102_150405"))
	path := filepath.Join(b.opts.ExportDir, name)
	if _, err := b.journal.ExportCSV(path, telemetry.FieldOrder); err != nil {
		return "", fmt.Errorf("bridge: journal export: %w", err)
	}
	return path, nil
}
