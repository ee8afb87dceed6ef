// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package bridge

import (
	"context"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/ChosF/TelemetryDashboard/pkg/database"
	"github.com/ChosF/TelemetryDashboard/pkg/health"
	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
	"github.com/ChosF/TelemetryDashboard/pkg/transport"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

const (
	republishPassSize  = 20
	republishPassSleep = 50 * time.Millisecond
)

// ingestTask consumes the live source stream.
func (b *Bridge) ingestTask(ctx context.Context) error {
	stream, err := b.source.Subscribe(ctx, b.opts.SourceChannel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-stream:
			if !ok {
				b.sourceHealth.MarkDisconnected()
				stream = b.reopenSource(ctx)
				if stream == nil {
					return ctx.Err()
				}
				continue
			}
			b.stats.received.Inc()
			b.sourceHealth.RecordMessage()

			s, err := telemetry.Parse(payload)
			if err != nil {
				if err == telemetry.ErrMissingCoreFields {
					b.stats.invalid.Inc()
				} else {
					b.stats.parseErrors.Inc()
				}
				log.Debugf("discarded inbound payload: %v", err)
				continue
			}
			b.handleSample(s)
		}
	}
}

// reopenSource blocks until the source is reconnected and resubscribed, or
// the context ends or the attempt budget runs out.
func (b *Bridge) reopenSource(ctx context.Context) <-chan []byte {
	for ctx.Err() == nil {
		if b.reconnect(ctx, &b.sourceReconnecting, b.sourceHealth, b.source, "source", &b.stats.sourceRecon) {
			stream, err := b.source.Subscribe(ctx, b.opts.SourceChannel)
			if err == nil {
				return stream
			}
			_ = log.Warnf("source resubscribe failed: %v", err)
		}
		if b.sourceHealth.ReconnectAttempts() >= b.opts.ReconnectMaxAttempts {
			_ = log.Error("source reconnect budget exhausted, ingest stopping")
			return nil
		}
		select {
		case <-ctx.Done():
		case <-b.clk.After(time.Second):
		}
	}
	return nil
}

// mockTask generates synthetic samples on the configured interval.
func (b *Bridge) mockTask(ctx context.Context) error {
	ticker := b.clk.Ticker(b.opts.MockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s := b.generator.Generate()
			if s == nil {
				continue
			}
			b.stats.received.Inc()
			b.sourceHealth.RecordMessage()
			b.handleSample(s)
		}
	}
}

// handleSample runs one sample through normalize, journal, republish queue
// and the database buffer.
func (b *Bridge) handleSample(s *telemetry.Sample) {
	b.normalizer.Normalize(s)
	record := s.Map()

	if err := b.journal.Append(record); err != nil {
		b.stats.journalErrors.Inc()
		_ = log.Errorf("journal append failed: %v", err)
	}

	if b.queue.push(record) {
		log.Debug("republish queue full, oldest message evicted")
	}

	if b.db != nil {
		row := s.DatabaseRow()
		b.dbMu.Lock()
		b.dbBuffer = append(b.dbBuffer, row)
		b.dbMu.Unlock()
	}
	b.stats.processed.Inc()
}

// republishTask forwards queued records to the sink through the rate
// limiter, reconnecting the sink when it goes down.
func (b *Bridge) republishTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !b.sinkHealth.Connected() || !b.sink.Connected() {
			b.reconnect(ctx, &b.sinkReconnecting, b.sinkHealth, b.sink, "sink", &b.stats.sinkRecon)
		} else {
			b.pub.Drain(b.opts.SinkChannel, b.opts.SinkEvent)
			for _, msg := range b.queue.popN(republishPassSize) {
				if b.pub.Publish(b.opts.SinkChannel, b.opts.SinkEvent, msg) {
					b.stats.republished.Inc()
					b.sinkHealth.RecordMessage()
				}
			}
			// The limiter retries failed sends itself; the bridge only
			// notes that the sink went unhealthy.
			if st := b.pub.Stats(); st.SendFailures > b.lastSendFailures {
				b.lastSendFailures = st.SendFailures
				b.sinkHealth.MarkDisconnected()
			}
		}

		// While the overflow queue holds backlog, passes tighten to the
		// drain interval so the queue empties at the refill rate.
		sleep := republishPassSleep
		if b.pub.QueueDepth() > 0 {
			sleep = b.opts.PublishDrainInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clk.After(sleep):
		}
	}
}

// reconnect performs one guarded reconnect attempt against a channel.
func (b *Bridge) reconnect(ctx context.Context, guard *uatomic.Bool, tracker *health.Tracker, conn transport.Conn, name string, total *uatomic.Int64) bool {
	if !guard.CompareAndSwap(false, true) {
		return false
	}
	defer guard.Store(false)

	attempts := tracker.ReconnectAttempts()
	if attempts >= b.opts.ReconnectMaxAttempts {
		return false
	}
	delay := b.reconnectPolicy.Delay(attempts)
	tracker.RecordReconnectAttempt()
	_ = log.Warnf("%s disconnected, reconnect attempt %d in %s", name, attempts+1, delay)

	select {
	case <-ctx.Done():
		return false
	case <-b.clk.After(delay):
	}

	if err := conn.Connect(ctx); err != nil {
		tracker.RecordError()
		_ = log.Warnf("%s reconnect failed: %v", name, err)
		return false
	}
	tracker.MarkConnected()
	total.Inc()
	log.Infof("%s reconnected", name)
	return true
}

// dbWriterTask flushes the row buffer on the batch interval, retrying
// failed batches with doubling backoff.
func (b *Bridge) dbWriterTask(ctx context.Context) error {
	if b.db == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := b.clk.Ticker(b.opts.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.flushRetryQueue(ctx, false)
			if err := b.flushDBBuffer(ctx); err != nil {
				_ = log.Errorf("database flush: %v", err)
			}
		}
	}
}

// flushDBBuffer snapshots and clears the buffer, then writes it in chunks.
func (b *Bridge) flushDBBuffer(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	b.dbMu.Lock()
	rows := b.dbBuffer
	b.dbBuffer = nil
	b.dbMu.Unlock()
	if len(rows) == 0 {
		return nil
	}

	var firstErr error
	for start := 0; start < len(rows); start += b.opts.MaxBatchSize {
		end := start + b.opts.MaxBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		if err := b.writeChunk(ctx, chunk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bridge) writeChunk(ctx context.Context, chunk []database.Row) error {
	if err := b.db.WriteBatch(ctx, chunk); err != nil {
		b.stats.dbFailures.Inc()
		b.retryMu.Lock()
		b.retryQueue = append(b.retryQueue, failedBatch{
			rows:      chunk,
			nextRetry: b.clk.Now().Add(b.retryExp.NextBackOff()),
		})
		b.retryMu.Unlock()
		return err
	}
	b.stats.dbBatchesOK.Inc()
	b.stats.dbRowsWritten.Add(int64(len(chunk)))
	b.retryMu.Lock()
	b.retryExp.Reset()
	b.retryMu.Unlock()
	return nil
}

// flushRetryQueue retries queued batches whose deadline has passed. With
// force set, deadlines are ignored (shutdown path). A failed retry stops
// the pass; the batch goes back to the queue.
func (b *Bridge) flushRetryQueue(ctx context.Context, force bool) {
	for {
		b.retryMu.Lock()
		if len(b.retryQueue) == 0 {
			b.retryMu.Unlock()
			return
		}
		batch := b.retryQueue[0]
		if !force && b.clk.Now().Before(batch.nextRetry) {
			b.retryMu.Unlock()
			return
		}
		b.retryQueue = b.retryQueue[1:]
		b.retryMu.Unlock()

		if err := b.db.WriteBatch(ctx, batch.rows); err != nil {
			b.stats.dbFailures.Inc()
			b.retryMu.Lock()
			batch.nextRetry = b.clk.Now().Add(b.retryExp.NextBackOff())
			b.retryQueue = append([]failedBatch{batch}, b.retryQueue...)
			b.retryMu.Unlock()
			_ = log.Warnf("database retry failed, %d rows requeued: %v", len(batch.rows), err)
			return
		}
		b.stats.dbBatchesOK.Inc()
		b.stats.dbRowsWritten.Add(int64(len(batch.rows)))
	}
}

// healthMonitorTask watches for stale sources and dead transports.
func (b *Bridge) healthMonitorTask(ctx context.Context) error {
	ticker := b.clk.Ticker(b.opts.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !b.opts.MockMode && b.sourceHealth.IsStale(b.opts.WatchdogTimeout) {
				b.stats.watchdogTrips.Inc()
				_ = log.Warnf("watchdog: no source data for %s, forcing reconnect", b.opts.WatchdogTimeout)
				b.sourceHealth.ResetForReconnect()
				b.reconnect(ctx, &b.sourceReconnecting, b.sourceHealth, b.source, "source", &b.stats.sourceRecon)
			}
			if b.source != nil && !b.source.Connected() {
				b.sourceHealth.MarkDisconnected()
			}
			if !b.sink.Connected() {
				b.sinkHealth.MarkDisconnected()
			}
		}
	}
}

// statsTask logs a periodic activity summary.
func (b *Bridge) statsTask(ctx context.Context) error {
	ticker := b.clk.Ticker(b.opts.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st := b.Stats()
			pubSt := b.pub.Stats()
			srcSt := b.sourceHealth.Stats()
			log.Infof(
				"stats: received=%d processed=%d republished=%d invalid=%d parse_errors=%d | "+
					"db: rows=%d batches=%d failures=%d buffered=%d retry_batches=%d | "+
					"limiter: depth=%d bursts=%d dropped=%d tokens=%.0f | "+
					"source: connected=%v reconnects=%d err_rate=%.1f/min | rss=%dMB",
				st.Received, st.Processed, st.Republished, st.Invalid, st.ParseErrors,
				st.DBRowsWritten, st.DBBatchesOK, st.DBFailures, st.DBBufferRows, st.RetryQueueBatches,
				pubSt.QueueDepth, pubSt.BurstEvents, pubSt.Dropped, pubSt.AvailableTokens,
				srcSt.Connected, srcSt.TotalReconnects, srcSt.ErrorRate,
				rssBytes()/(1024*1024),
			)
		}
	}
}
