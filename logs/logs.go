// Package logs is a small leveled logging substrate shared by every
// subsystem in this module. It exists because the upstream
// subsystem-tagged logger this project's code is styled after
// (kaspad's internal "logs" package) ships no public, reusable form —
// each subsystem gets a *Logger carved out of one shared Backend, and the
// Backend fans writes out to one or more BackendWriters (stdout, a
// rotating file, ...).
package logs

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Level is a logging severity level, ordered from most to least verbose.
type Level int

// The supported logging levels, in increasing order of severity.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelNames = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNK"
}

// BackendWriter pairs an io.Writer with the minimum level it accepts.
// Two constructors cover the common cases: one writer that takes
// everything and a second that takes only errors-and-above, so a single
// Backend can duplex "everything" to stdout and "errors only" to a
// separate file, matching how this module's cmd/sidetreed wires its logs.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter returns a BackendWriter that writes every
// level to w.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter returns a BackendWriter that writes only
// LevelError and LevelCritical records to w.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend is the logging backend shared by every subsystem Logger minted
// from it. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	writers []*BackendWriter
}

// NewBackend creates a Backend that duplicates every accepted record to
// each of writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

// Logger mints a Logger for the given subsystem tag, backed by this
// Backend. Multiple calls with the same tag return independent Loggers
// sharing the same backend; each starts at LevelInfo and keeps its own
// level.
func (b *Backend) Logger(tag string) *Logger {
	return &Logger{backend: b, tag: tag, level: LevelInfo}
}

func (b *Backend) write(level Level, tag, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := fmt.Sprintf("%s [%s] %s %s\n", time.Now().UTC().Format(time.RFC3339), level, tag, msg)
	for _, w := range b.writers {
		if level >= w.minLevel {
			_, _ = io.WriteString(w.w, line)
		}
	}
}

// Close releases any resources held by the backend's writers that
// implement io.Closer. Errors from individual writers are collected but
// do not stop the others from being closed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if closer, ok := w.w.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Logger is a subsystem-tagged leveled logger. The zero value is not
// usable; obtain one via Backend.Logger.
type Logger struct {
	backend *Backend
	tag     string
	level   Level
}

// SetLevel changes the minimum level this Logger emits.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Backend returns the Backend this Logger was minted from.
func (l *Logger) Backend() *Backend {
	return l.backend
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.backend.write(level, l.tag, fmt.Sprintf(format, args...))
}

// Tracef logs at LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) { l.logf(LevelTrace, format, args...) }

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Criticalf logs at LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.logf(LevelCritical, format, args...)
}
