// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package run implements the 'run' subcommand: the bridge process itself.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ChosF/TelemetryDashboard/pkg/bridge"
	"github.com/ChosF/TelemetryDashboard/pkg/config"
	"github.com/ChosF/TelemetryDashboard/pkg/database"
	"github.com/ChosF/TelemetryDashboard/pkg/mock"
	"github.com/ChosF/TelemetryDashboard/pkg/transport"
	"github.com/ChosF/TelemetryDashboard/pkg/util/log"
)

type cliParams struct {
	mockMode bool
	realMode bool
	scenario string
	session  string
	rate     float64
}

// MakeCommand returns the run subcommand.
func MakeCommand() *cobra.Command {
	params := &cliParams{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the telemetry bridge",
		Long: `Run starts the bridge. With --mock the built-in generator feeds the
pipeline; with --real the configured realtime source does. With neither
flag an interactive menu asks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return start(params)
		},
	}
	cmd.Flags().BoolVar(&params.mockMode, "mock", false, "use the built-in mock data generator")
	cmd.Flags().BoolVar(&params.realMode, "real", false, "use the live telemetry source")
	cmd.Flags().StringVar(&params.scenario, "scenario", "", "mock scenario (normal, sensor_failures, data_stalls, intermittent, gps_issues, chaos)")
	cmd.Flags().StringVar(&params.session, "session", "", "session display name")
	cmd.Flags().Float64Var(&params.rate, "rate", 0, "publish rate limit override, messages per second")
	return cmd
}

func start(params *cliParams) error {
	if err := log.SetupConsole(config.Bridge.GetString("log_level")); err != nil {
		return fmt.Errorf("logger setup: %w", err)
	}

	if params.mockMode && params.realMode {
		return fmt.Errorf("--mock and --real are mutually exclusive")
	}
	if !params.mockMode && !params.realMode {
		if err := promptMode(params); err != nil {
			return err
		}
	}

	scenario := mock.ScenarioNormal
	if params.scenario != "" {
		var err error
		if scenario, err = mock.ParseScenario(params.scenario); err != nil {
			return err
		}
	}

	opts := bridge.OptionsFromConfig(config.Bridge)
	opts.MockMode = params.mockMode
	opts.MockScenario = scenario
	if params.rate > 0 {
		opts.PublishRate = params.rate
	}

	opts.SessionID = uuid.NewString()
	name := params.session
	if name == "" {
		name = "Session " + opts.SessionID[:8]
	}
	if opts.MockMode {
		name = "M " + name
	}
	opts.SessionName = name

	source, sink, err := buildTransports(params)
	if err != nil {
		return err
	}

	var db database.BatchWriter
	if url := config.Bridge.GetString("database.url"); url != "" {
		db = database.NewRESTClient(
			url,
			config.Bridge.GetString("database.api_key"),
			config.Bridge.GetString("database.table"),
			config.Bridge.GetDuration("connection.timeout"),
		)
	} else {
		log.Info("no database configured, rows stay in the local journal only")
	}

	b, err := bridge.New(opts, source, sink, db, afero.NewOsFs())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("session %s (%s)", opts.SessionID, opts.SessionName)
	start := time.Now()
	err = b.Run(ctx)
	log.Infof("bridge ran for %s", time.Since(start).Round(time.Second))
	return err
}

// buildTransports resolves the source and sink connections. The realtime
// SDK is injected at this seam; without one configured, mock mode runs on
// the in-process bus and real mode is refused.
func buildTransports(params *cliParams) (transport.Subscriber, transport.Publisher, error) {
	if params.realMode {
		return nil, nil, fmt.Errorf("no realtime provider is configured for the live source; run with --mock")
	}
	bus := transport.NewInmemBus()
	sink := transport.NewInmemConn(bus)
	return nil, sink, nil
}
