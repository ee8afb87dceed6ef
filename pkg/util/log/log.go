// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log wraps seelog behind the package-level helpers the rest of the
// bridge logs through. Components never hold a logger.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	mu     sync.RWMutex
	logger seelog.LoggerInterface
	level  seelog.LogLevel = seelog.InfoLvl
)

const defaultStackDepth = 2

// Setup installs the process logger. Call once before constructing the
// bridge; messages logged earlier go to stderr.
func Setup(l seelog.LoggerInterface, lvl string) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		logger.Flush()
	}
	logger = l
	if parsed, ok := seelog.LogLevelFromString(strings.ToLower(lvl)); ok {
		level = parsed
	}
	// Package-level helpers add one frame between the caller and seelog.
	logger.SetAdditionalStackDepth(defaultStackDepth) //nolint:errcheck
}

// SetupConsole configures a plain console logger at the given level.
func SetupConsole(lvl string) error {
	cfg := fmt.Sprintf(
		`<seelog minlevel="%s">
    <outputs formatid="common"><console/></outputs>
    <formats><format id="common" format="%%Date(2006-01-02 15:04:05 MST) | %%LEVEL | %%Msg%%n"/></formats>
</seelog>`, strings.ToLower(lvl))
	l, err := seelog.LoggerFromConfigAsString(cfg)
	if err != nil {
		return err
	}
	Setup(l, lvl)
	return nil
}

func shouldLog(lvl seelog.LogLevel) bool {
	return lvl >= level
}

// Trace logs at the trace level.
func Trace(v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil && shouldLog(seelog.TraceLvl) {
		logger.Trace(v...)
	}
}

// Tracef formats and logs at the trace level.
func Tracef(format string, params ...interface{}) {
	Trace(fmt.Sprintf(format, params...))
}

// Debug logs at the debug level.
func Debug(v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil && shouldLog(seelog.DebugLvl) {
		logger.Debug(v...)
	}
}

// Debugf formats and logs at the debug level.
func Debugf(format string, params ...interface{}) {
	Debug(fmt.Sprintf(format, params...))
}

// Info logs at the info level.
func Info(v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil && shouldLog(seelog.InfoLvl) {
		logger.Info(v...)
	}
}

// Infof formats and logs at the info level.
func Infof(format string, params ...interface{}) {
	Info(fmt.Sprintf(format, params...))
}

// Warn logs at the warn level and returns the message as an error.
func Warn(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		fmt.Fprintln(os.Stderr, "WARN:", err)
	} else if shouldLog(seelog.WarnLvl) {
		logger.Warn(err.Error()) //nolint:errcheck
	}
	return err
}

// Warnf formats, logs at the warn level and returns the message as an error.
func Warnf(format string, params ...interface{}) error {
	return Warn(fmt.Sprintf(format, params...))
}

// Error logs at the error level and returns the message as an error.
func Error(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
	} else if shouldLog(seelog.ErrorLvl) {
		logger.Error(err.Error()) //nolint:errcheck
	}
	return err
}

// Errorf formats, logs at the error level and returns the message as an error.
func Errorf(format string, params ...interface{}) error {
	return Error(fmt.Sprintf(format, params...))
}

// Critical logs at the critical level and returns the message as an error.
func Critical(v ...interface{}) error {
	err := fmt.Errorf("%s", fmt.Sprint(v...))
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		fmt.Fprintln(os.Stderr, "CRITICAL:", err)
	} else {
		logger.Critical(err.Error()) //nolint:errcheck
	}
	return err
}

// Criticalf formats, logs at the critical level and returns the message as an error.
func Criticalf(format string, params ...interface{}) error {
	return Critical(fmt.Sprintf(format, params...))
}

// Flush flushes the underlying logger.
func Flush() {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		logger.Flush()
	}
}
