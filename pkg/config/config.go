// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config exposes the process-level settings of the bridge through a
// single viper instance. Every tunable has a default and most bind to an
// environment variable, so the binary runs with no config file at all.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bridge is the global configuration of the process.
var Bridge = viper.New()

func init() {
	InitConfig(Bridge)
}

// BindEnvAndSetDefault sets a default value for a key and binds it to one or
// more environment variables.
func BindEnvAndSetDefault(v *viper.Viper, key string, val interface{}, env ...string) {
	v.SetDefault(key, val)
	if len(env) == 0 {
		env = []string{strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))}
	}
	v.BindEnv(append([]string{key}, env...)...) //nolint:errcheck
}

// InitConfig installs defaults and env bindings on a viper instance.
func InitConfig(v *viper.Viper) {
	// Mock source
	BindEnvAndSetDefault(v, "mock.interval", 200*time.Millisecond, "MOCK_DATA_INTERVAL")

	// Database path
	BindEnvAndSetDefault(v, "database.url", "", "DATABASE_URL")
	BindEnvAndSetDefault(v, "database.api_key", "", "DATABASE_API_KEY")
	BindEnvAndSetDefault(v, "database.table", "telemetry", "DATABASE_TABLE")
	BindEnvAndSetDefault(v, "database.batch_interval", 9*time.Second, "DB_BATCH_INTERVAL")
	BindEnvAndSetDefault(v, "database.max_batch_size", 200, "MAX_BATCH_SIZE")
	BindEnvAndSetDefault(v, "database.retry_base_backoff", 3*time.Second, "RETRY_BASE_BACKOFF")
	BindEnvAndSetDefault(v, "database.retry_backoff_max", 60*time.Second, "RETRY_BACKOFF_MAX")

	// Reliability
	BindEnvAndSetDefault(v, "connection.timeout", 15*time.Second, "CONNECTION_TIMEOUT")
	BindEnvAndSetDefault(v, "watchdog.timeout", 30*time.Second, "WATCHDOG_TIMEOUT")
	BindEnvAndSetDefault(v, "health.check_interval", 10*time.Second, "HEALTH_CHECK_INTERVAL")
	BindEnvAndSetDefault(v, "queue.max_size", 5000, "MAX_QUEUE_SIZE")
	BindEnvAndSetDefault(v, "reconnect.max_attempts", 10, "RECONNECT_MAX_ATTEMPTS")
	BindEnvAndSetDefault(v, "reconnect.base_delay", time.Second, "RECONNECT_BASE_DELAY")

	// Publisher rate limiting
	BindEnvAndSetDefault(v, "publish.rate_limit", 500, "PUBLISH_RATE_LIMIT")
	BindEnvAndSetDefault(v, "publish.burst_capacity", 100, "PUBLISH_BURST_CAPACITY")
	BindEnvAndSetDefault(v, "publish.queue_max_size", 10000, "PUBLISH_QUEUE_MAX_SIZE")
	BindEnvAndSetDefault(v, "publish.drain_interval", 2*time.Millisecond, "PUBLISH_DRAIN_INTERVAL")

	// Realtime channels; credentials are opaque and passed through
	BindEnvAndSetDefault(v, "source.api_key", "", "SOURCE_API_KEY")
	BindEnvAndSetDefault(v, "source.channel", "EcoTele", "SOURCE_CHANNEL")
	BindEnvAndSetDefault(v, "sink.api_key", "", "SINK_API_KEY")
	BindEnvAndSetDefault(v, "sink.channel", "telemetry-dashboard-channel", "SINK_CHANNEL")
	BindEnvAndSetDefault(v, "sink.event", "telemetry_update", "SINK_EVENT")

	// Durability paths
	BindEnvAndSetDefault(v, "spool_dir", "./spool", "SPOOL_DIR")
	BindEnvAndSetDefault(v, "export_dir", "./export", "EXPORT_DIR")

	BindEnvAndSetDefault(v, "log_level", "info", "LOG_LEVEL")
}
