// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChosF/TelemetryDashboard/pkg/database"
	"github.com/ChosF/TelemetryDashboard/pkg/mock"
	"github.com/ChosF/TelemetryDashboard/pkg/telemetry"
	"github.com/ChosF/TelemetryDashboard/pkg/transport"
)

func testOptions() Options {
	return Options{
		SessionID:   "sess-test",
		SessionName: "Bridge Test",
		SinkChannel: "dash",
		SinkEvent:   "telemetry_update",

		MockMode:     true,
		MockScenario: mock.ScenarioNormal,
		MockInterval: 2 * time.Millisecond,

		BatchInterval:    20 * time.Millisecond,
		MaxBatchSize:     50,
		RetryBaseBackoff: 10 * time.Millisecond,
		RetryBackoffMax:  100 * time.Millisecond,

		WatchdogTimeout:     time.Second,
		HealthCheckInterval: 10 * time.Millisecond,
		StatsInterval:       time.Hour,

		QueueMaxSize:         1000,
		ReconnectMaxAttempts: 10,
		ReconnectBaseDelay:   time.Millisecond,

		PublishRate:  10000,
		PublishBurst: 1000,

		SpoolDir:  "spool",
		ExportDir: "export",
	}
}

type harness struct {
	bridge *Bridge
	bus    *transport.InmemBus
	sink   *transport.InmemConn
	source *transport.InmemConn
	db     *database.MemWriter
	fs     afero.Fs
	done   chan error
}

func startBridge(t *testing.T, opts Options) *harness {
	t.Helper()
	bus := transport.NewInmemBus()
	h := &harness{
		bus:  bus,
		sink: transport.NewInmemConn(bus),
		db:   database.NewMemWriter(),
		fs:   afero.NewMemMapFs(),
		done: make(chan error, 1),
	}
	var src transport.Subscriber
	if !opts.MockMode {
		h.source = transport.NewInmemConn(bus)
		src = h.source
	}
	b, err := New(opts, src, h.sink, h.db, h.fs)
	require.NoError(t, err)
	h.bridge = b
	go func() { h.done <- b.Run(context.Background()) }()

	require.Eventually(t, b.Running, time.Second, time.Millisecond)
	return h
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.bridge.Stop()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func TestMockModeEndToEnd(t *testing.T) {
	h := startBridge(t, testOptions())

	require.Eventually(t, func() bool {
		return h.bridge.Stats().Processed >= 20
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	st := h.bridge.Stats()

	assert.Equal(t, st.Received, st.Processed)
	assert.Zero(t, st.ParseErrors)

	// Everything processed reached the journal.
	count := 0
	data, err := afero.ReadFile(h.fs, h.bridge.JournalPath())
	require.NoError(t, err)
	for _, c := range data {
		if c == '\n' {
			count++
		}
	}
	assert.Equal(t, int(st.Processed), count)

	// The sink saw enriched records.
	events := h.bus.Published()
	require.NotEmpty(t, events)
	first := events[0]
	assert.Equal(t, "dash", first.Channel)
	assert.Equal(t, "telemetry_update", first.Event)
	assert.Equal(t, "sess-test", first.Payload["session_id"])
	assert.Contains(t, first.Payload, "motion_state")
	assert.Equal(t, "MOCK_NORMAL", first.Payload["data_source"])

	// The final flush delivered every buffered row.
	assert.Equal(t, int(st.Processed), len(h.db.Rows()))
	assert.Zero(t, h.bridge.Stats().RetryQueueBatches)
}

func TestRealModeIngest(t *testing.T) {
	opts := testOptions()
	opts.MockMode = false
	opts.SourceChannel = "vehicle"
	h := startBridge(t, opts)

	h.bus.Send("vehicle", []byte(`{"speed_ms": 10.5, "voltage_v": 48.2, "current_a": 7.1}`))
	h.bus.Send("vehicle", []byte(`{"foo": 1}`))          // no core field
	h.bus.Send("vehicle", []byte(`nonsense`))            // unparseable
	h.bus.Send("vehicle", []byte(`{"voltage_v": 47.9}`)) // one core field is enough

	require.Eventually(t, func() bool {
		return h.bridge.Stats().Processed == 2
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	st := h.bridge.Stats()
	assert.Equal(t, int64(4), st.Received)
	assert.Equal(t, int64(1), st.Invalid)
	assert.Equal(t, int64(1), st.ParseErrors)

	rows := h.db.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, 10.5, rows[0]["speed_ms"])
	// power_w recomputed by the normalizer
	assert.InDelta(t, 48.2*7.1, rows[0]["power_w"].(float64), 0.001)
	assert.Equal(t, "sess-test", rows[0]["session_id"])
}

func TestDBFailureQueuesAndExports(t *testing.T) {
	h := startBridge(t, testOptions())
	h.db.Fail(true)

	require.Eventually(t, func() bool {
		return h.bridge.Stats().DBFailures >= 1
	}, 5*time.Second, 5*time.Millisecond)

	// Shutdown with the database still down: rows stay queued, the journal
	// is exported as CSV.
	require.NoError(t, h.stop(t))
	st := h.bridge.Stats()
	assert.Greater(t, st.RetryQueueBatches, 0)
	assert.Empty(t, h.db.Rows())

	exports, err := afero.ReadDir(h.fs, "export")
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Contains(t, exports[0].Name(), "telemetry_sess-test_")
	assert.Contains(t, exports[0].Name(), ".csv")

	data, err := afero.ReadFile(h.fs, "export/"+exports[0].Name())
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Equal(t, strings.Join(telemetry.FieldOrder, ","), strings.TrimRight(header, "\r"))
}

func TestDBRecoveryRetriesQueuedBatches(t *testing.T) {
	h := startBridge(t, testOptions())
	h.db.Fail(true)

	require.Eventually(t, func() bool {
		return h.bridge.Stats().DBFailures >= 1
	}, 5*time.Second, 5*time.Millisecond)

	h.db.Fail(false)
	require.Eventually(t, func() bool {
		st := h.bridge.Stats()
		return st.RetryQueueBatches == 0 && st.DBRowsWritten > 0
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	assert.NotEmpty(t, h.db.Rows())
}

func TestSinkOutageReconnectsAndRecovers(t *testing.T) {
	h := startBridge(t, testOptions())

	require.Eventually(t, func() bool {
		return len(h.bus.Published()) >= 5
	}, 5*time.Second, 5*time.Millisecond)

	h.sink.FailPublishes(true)
	require.Eventually(t, func() bool {
		return !h.bridge.sinkHealth.Connected()
	}, 5*time.Second, 5*time.Millisecond)

	h.sink.FailPublishes(false)
	require.Eventually(t, func() bool {
		return h.bridge.sinkHealth.Connected()
	}, 5*time.Second, 5*time.Millisecond)

	before := len(h.bus.Published())
	require.Eventually(t, func() bool {
		return len(h.bus.Published()) > before
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	assert.Greater(t, h.bridge.Stats().SinkReconnects, int64(0))
}

func TestWatchdogTripsOnStaleSource(t *testing.T) {
	opts := testOptions()
	opts.MockMode = false
	opts.SourceChannel = "vehicle"
	opts.WatchdogTimeout = 50 * time.Millisecond
	h := startBridge(t, opts)

	// One message arms the staleness check, then the source goes quiet.
	h.bus.Send("vehicle", []byte(`{"speed_ms": 10.5, "voltage_v": 48.2, "current_a": 7.1}`))
	require.Eventually(t, func() bool {
		return h.bridge.Stats().Processed == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return h.bridge.Stats().WatchdogTrips >= 1
	}, 5*time.Second, 5*time.Millisecond)

	// The in-memory source reconnects cleanly.
	require.Eventually(t, func() bool {
		return h.bridge.Stats().SourceReconnects >= 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop(t))
	assert.GreaterOrEqual(t, h.bridge.Stats().WatchdogTrips, int64(1))
}

func TestNewValidation(t *testing.T) {
	fs := afero.NewMemMapFs()
	bus := transport.NewInmemBus()
	sink := transport.NewInmemConn(bus)

	_, err := New(Options{}, nil, sink, nil, fs)
	assert.Error(t, err) // no session

	opts := testOptions()
	opts.MockMode = false
	_, err = New(opts, nil, sink, nil, fs)
	assert.Error(t, err) // no source in real mode

	opts = testOptions()
	_, err = New(opts, nil, nil, nil, fs)
	assert.Error(t, err) // no sink
}

func TestDBRetryBackoffDoublesAndResets(t *testing.T) {
	bus := transport.NewInmemBus()
	sink := transport.NewInmemConn(bus)
	db := database.NewMemWriter()
	db.Fail(true)
	mc := clock.NewMock()

	b, err := New(testOptions(), nil, sink, db, afero.NewMemMapFs(), WithClock(mc))
	require.NoError(t, err)
	defer b.journal.Close()

	ctx := context.Background()
	var delays []time.Duration
	for i := 0; i < 5; i++ {
		require.Error(t, b.writeChunk(ctx, []database.Row{{"message_id": i}}))
		b.retryMu.Lock()
		last := b.retryQueue[len(b.retryQueue)-1]
		b.retryMu.Unlock()
		delays = append(delays, last.nextRetry.Sub(mc.Now()))
	}
	// base 10ms doubling, clipped at the 100ms max
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
		80 * time.Millisecond, 100 * time.Millisecond,
	}, delays)

	db.Fail(false)
	require.NoError(t, b.writeChunk(ctx, []database.Row{{"message_id": 9}}))

	db.Fail(true)
	require.Error(t, b.writeChunk(ctx, []database.Row{{"message_id": 10}}))
	b.retryMu.Lock()
	last := b.retryQueue[len(b.retryQueue)-1]
	b.retryMu.Unlock()
	assert.Equal(t, 10*time.Millisecond, last.nextRetry.Sub(mc.Now()))
}

func TestOptionsDrainInterval(t *testing.T) {
	v := viper.New()
	v.Set("publish.drain_interval", "7ms")
	opts := OptionsFromConfig(v)
	assert.Equal(t, 7*time.Millisecond, opts.PublishDrainInterval)

	var def Options
	def.applyDefaults()
	assert.Equal(t, 2*time.Millisecond, def.PublishDrainInterval)
}

func TestStopIsIdempotent(t *testing.T) {
	h := startBridge(t, testOptions())
	require.NoError(t, h.stop(t))
	h.bridge.Stop()
	assert.False(t, h.bridge.Running())
}
