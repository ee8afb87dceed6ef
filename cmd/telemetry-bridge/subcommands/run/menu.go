// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package run

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/ChosF/TelemetryDashboard/pkg/mock"
)

// promptMode asks for the run mode and, in mock mode, the scenario and an
// optional session label.
func promptMode(params *cliParams) error {
	reader := bufio.NewReader(os.Stdin)
	title := color.New(color.FgCyan, color.Bold)
	item := color.New(color.FgWhite)
	warn := color.New(color.FgYellow)

	title.Println("telemetry-bridge")
	item.Println("  1) mock  - built-in data generator")
	item.Println("  2) real  - live telemetry source")
	fmt.Print("mode [1]: ")
	choice, err := readLine(reader)
	if err != nil {
		return err
	}
	switch choice {
	case "", "1":
		params.mockMode = true
	case "2":
		params.realMode = true
		return nil
	default:
		return fmt.Errorf("unknown mode %q", choice)
	}

	if params.scenario == "" {
		title.Println("mock scenario")
		for i, s := range mock.Scenarios {
			item.Printf("  %d) %s\n", i+1, s)
		}
		fmt.Print("scenario [1]: ")
		raw, err := readLine(reader)
		if err != nil {
			return err
		}
		if raw == "" {
			raw = "1"
		}
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 1 || idx > len(mock.Scenarios) {
			warn.Println("unrecognized choice, using normal")
			idx = 1
		}
		params.scenario = string(mock.Scenarios[idx-1])
	}

	if params.session == "" {
		fmt.Print("session name (blank for generated): ")
		name, err := readLine(reader)
		if err != nil {
			return err
		}
		params.session = name
	}
	return nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
