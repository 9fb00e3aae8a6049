// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/daglabs/sidetree-anchor-engine/logs"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output
// and the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// errLogWriter implements an io.Writer that outputs to both standard
// output and the write-end pipe of an initialized error log rotator.
type errLogWriter struct{}

func (errLogWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		ErrLogRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it write to the backend. When adding a
// new subsystem, add its logger variable here and to subsystemLoggers.
//
// Loggers cannot be used before the log rotator has been initialized with
// a log file. This must be performed early during application startup by
// calling InitLogRotators.
var (
	// BackendLog is the logging backend used to create all subsystem
	// loggers. It must not be used before the log rotator has been
	// initialized, or data races and/or nil pointer dereferences will
	// occur.
	BackendLog = logs.NewBackend([]*logs.BackendWriter{
		logs.NewAllLevelsBackendWriter(logWriter{}),
		logs.NewErrorBackendWriter(errLogWriter{}),
	})

	// LogRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	LogRotator *rotator.Rotator
	// ErrLogRotator is the error-only logging output.
	ErrLogRotator *rotator.Rotator

	chanLog = BackendLog.Logger("CHAN")
	anchLog = BackendLog.Logger("ANCH")
	tlogLog = BackendLog.Logger("TLOG")
	sampLog = BackendLog.Logger("SAMP")
	qntlLog = BackendLog.Logger("QNTL")
	syncLog = BackendLog.Logger("SYNC")
	qapiLog = BackendLog.Logger("QAPI")
	storLog = BackendLog.Logger("STOR")
	cnfgLog = BackendLog.Logger("CNFG")

	initiated = false
)

// SubsystemTags is an enum of all subsystem tags used by this module.
var SubsystemTags = struct {
	CHAN,
	ANCH,
	TLOG,
	SAMP,
	QNTL,
	SYNC,
	QAPI,
	STOR,
	CNFG string
}{
	CHAN: "CHAN",
	ANCH: "ANCH",
	TLOG: "TLOG",
	SAMP: "SAMP",
	QNTL: "QNTL",
	SYNC: "SYNC",
	QAPI: "QAPI",
	STOR: "STOR",
	CNFG: "CNFG",
}

// subsystemLoggers maps each subsystem identifier to its associated
// logger.
var subsystemLoggers = map[string]*logs.Logger{
	SubsystemTags.CHAN: chanLog,
	SubsystemTags.ANCH: anchLog,
	SubsystemTags.TLOG: tlogLog,
	SubsystemTags.SAMP: sampLog,
	SubsystemTags.QNTL: qntlLog,
	SubsystemTags.SYNC: syncLog,
	SubsystemTags.QAPI: qapiLog,
	SubsystemTags.STOR: storLog,
	SubsystemTags.CNFG: cnfgLog,
}

// Subsystem returns the logger registered for the given subsystem tag, or
// nil if tag is unknown.
func Subsystem(tag string) *logs.Logger {
	return subsystemLoggers[tag]
}

// InitLogRotators initializes the logging rotators to write logs to
// logFile and errLogFile, creating roll files alongside them. It must be
// called before any of the package-level subsystem loggers are used.
func InitLogRotators(logFile, errLogFile string) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %s", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %s", err)
	}
	LogRotator = r

	errLogDir, _ := filepath.Split(errLogFile)
	err = os.MkdirAll(errLogDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create error log directory: %s", err)
	}
	er, err := rotator.New(errLogFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create error log rotator: %s", err)
	}
	ErrLogRotator = er

	initiated = true
	return nil
}

// SetLogLevels sets the log level for every registered subsystem.
func SetLogLevels(level logs.Level) {
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystem
// tags — useful for validating a user-supplied --debuglevel flag.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ParseAndSetDebugLevels attempts to parse a comma-separated
// "SUBSYS=level" or bare "level" specification string, matching the
// --debuglevel flag convention used throughout the btcsuite family of
// nodes this project is descended from.
func ParseAndSetDebugLevels(spec string) error {
	levels := map[string]logs.Level{
		"trace":    logs.LevelTrace,
		"debug":    logs.LevelDebug,
		"info":     logs.LevelInfo,
		"warn":     logs.LevelWarn,
		"error":    logs.LevelError,
		"critical": logs.LevelCritical,
		"off":      logs.LevelOff,
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "=") {
			level, ok := levels[strings.ToLower(part)]
			if !ok {
				return fmt.Errorf("unknown log level %q", part)
			}
			SetLogLevels(level)
			continue
		}
		fields := strings.SplitN(part, "=", 2)
		subsystem, levelStr := strings.ToUpper(fields[0]), strings.ToLower(fields[1])
		logger, ok := subsystemLoggers[subsystem]
		if !ok {
			return fmt.Errorf("unknown subsystem %q", subsystem)
		}
		level, ok := levels[levelStr]
		if !ok {
			return fmt.Errorf("unknown log level %q", levelStr)
		}
		logger.SetLevel(level)
	}
	return nil
}
