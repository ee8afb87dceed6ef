// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package bridge

import (
	"time"

	"github.com/spf13/viper"

	"github.com/ChosF/TelemetryDashboard/pkg/mock"
)

// Options collects everything the bridge needs at construction time.
type Options struct {
	SessionID   string
	SessionName string

	SourceChannel string
	SinkChannel   string
	SinkEvent     string

	MockMode     bool
	MockScenario mock.Scenario
	MockInterval time.Duration

	BatchInterval    time.Duration
	MaxBatchSize     int
	RetryBaseBackoff time.Duration
	RetryBackoffMax  time.Duration

	WatchdogTimeout     time.Duration
	HealthCheckInterval time.Duration
	StatsInterval       time.Duration

	QueueMaxSize         int
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration

	PublishRate          float64
	PublishBurst         int
	PublishQueueMax      int
	PublishDrainInterval time.Duration

	SpoolDir  string
	ExportDir string
}

// OptionsFromConfig builds Options from a viper instance, filling the
// session identity separately.
func OptionsFromConfig(v *viper.Viper) Options {
	return Options{
		SourceChannel: v.GetString("source.channel"),
		SinkChannel:   v.GetString("sink.channel"),
		SinkEvent:     v.GetString("sink.event"),

		MockScenario: mock.ScenarioNormal,
		MockInterval: v.GetDuration("mock.interval"),

		BatchInterval:    v.GetDuration("database.batch_interval"),
		MaxBatchSize:     v.GetInt("database.max_batch_size"),
		RetryBaseBackoff: v.GetDuration("database.retry_base_backoff"),
		RetryBackoffMax:  v.GetDuration("database.retry_backoff_max"),

		WatchdogTimeout:     v.GetDuration("watchdog.timeout"),
		HealthCheckInterval: v.GetDuration("health.check_interval"),
		StatsInterval:       30 * time.Second,

		QueueMaxSize:         v.GetInt("queue.max_size"),
		ReconnectMaxAttempts: v.GetInt("reconnect.max_attempts"),
		ReconnectBaseDelay:   v.GetDuration("reconnect.base_delay"),

		PublishRate:          v.GetFloat64("publish.rate_limit"),
		PublishBurst:         v.GetInt("publish.burst_capacity"),
		PublishQueueMax:      v.GetInt("publish.queue_max_size"),
		PublishDrainInterval: v.GetDuration("publish.drain_interval"),

		SpoolDir:  v.GetString("spool_dir"),
		ExportDir: v.GetString("export_dir"),
	}
}

func (o *Options) applyDefaults() {
	if o.MockInterval <= 0 {
		o.MockInterval = 200 * time.Millisecond
	}
	if o.BatchInterval <= 0 {
		o.BatchInterval = 9 * time.Second
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 200
	}
	if o.RetryBaseBackoff <= 0 {
		o.RetryBaseBackoff = 3 * time.Second
	}
	if o.RetryBackoffMax <= 0 {
		o.RetryBackoffMax = 60 * time.Second
	}
	if o.WatchdogTimeout <= 0 {
		o.WatchdogTimeout = 30 * time.Second
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = 10 * time.Second
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = 30 * time.Second
	}
	if o.QueueMaxSize <= 0 {
		o.QueueMaxSize = 5000
	}
	if o.ReconnectMaxAttempts <= 0 {
		o.ReconnectMaxAttempts = 10
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.PublishDrainInterval <= 0 {
		o.PublishDrainInterval = 2 * time.Millisecond
	}
	if o.SinkEvent == "" {
		o.SinkEvent = "telemetry_update"
	}
	if o.SpoolDir == "" {
		o.SpoolDir = "./spool"
	}
	if o.ExportDir == "" {
		o.ExportDir = "./export"
	}
	if o.MockScenario == "" {
		o.MockScenario = mock.ScenarioNormal
	}
}
