// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package command holds the root cobra command of the telemetry bridge.
package command

import (
	"github.com/spf13/cobra"
)

// SubcommandFactory builds one subcommand tree.
type SubcommandFactory func() *cobra.Command

// MakeCommand assembles the root command from the subcommand factories.
func MakeCommand(factories []SubcommandFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "telemetry-bridge",
		Short: "Vehicle telemetry ingestion and republishing bridge",
		Long: `telemetry-bridge ingests vehicle telemetry from a realtime feed or a
built-in mock generator, validates and enriches every sample, journals it
locally and republishes it to the dashboard channel while batching rows to
the database.`,
		SilenceUsage: true,
	}
	for _, factory := range factories {
		root.AddCommand(factory())
	}
	return root
}
