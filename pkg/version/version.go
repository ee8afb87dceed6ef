// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package version holds the build identity, overridden at link time.
package version

var (
	// Version is the semantic version of the build.
	Version = "0.0.0-dev"
	// Commit is the git revision the binary was built from.
	Commit = ""
)

// Full returns the version with the commit suffix when known.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
