// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Main package of the telemetry bridge binary.
package main

import (
	"os"

	"github.com/ChosF/TelemetryDashboard/cmd/telemetry-bridge/command"
	"github.com/ChosF/TelemetryDashboard/cmd/telemetry-bridge/subcommands/run"
	"github.com/ChosF/TelemetryDashboard/cmd/telemetry-bridge/subcommands/version"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

func main() {
	factories := []command.SubcommandFactory{
		run.MakeCommand,
		version.MakeCommand,
	}
	if err := command.MakeCommand(factories).Execute(); err != nil {
		log.Flush()
		os.Exit(1)
	}
	log.Flush()
}
