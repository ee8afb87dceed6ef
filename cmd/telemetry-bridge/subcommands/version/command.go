// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package version implements the 'version' subcommand.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChosF/TelemetryDashboard/pkg/version"
)

// MakeCommand returns the version subcommand.
func MakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "telemetry-bridge %s\n", version.Full())
			return nil
		},
	}
}
