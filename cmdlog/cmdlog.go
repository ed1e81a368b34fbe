// Package cmdlog provides a small leveled logger used by the CLI
// driver and, optionally, by the interpreter and model checker for
// trace-level output. It is adapted from the flow-control-sim pack
// repository's Logger: a thin wrapper around the standard log
// package, gated by level, nil-safe so callers can pass a nil
// *Logger and get silence rather than a panic.
package cmdlog

import (
	"fmt"
	stdlog "log"
	"os"
)

// Level is the logging severity. Higher values are more verbose.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelTrace
)

// Logger is a leveled wrapper around *log.Logger.
type Logger struct {
	level  Level
	logger *stdlog.Logger
}

// New creates a Logger writing to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{
		level:  level,
		logger: stdlog.New(os.Stderr, "", stdlog.LstdFlags),
	}
}

// SetLevel adjusts the logger's level. Safe to call on a nil Logger.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level = level
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.logger.Output(3, fmt.Sprintf(format, args...))
}

// Tracef prints trace-level messages (verbose execution detail).
func (l *Logger) Tracef(format string, args ...any) { l.logf(LevelTrace, format, args...) }

// Infof prints informational messages.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf prints warnings.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf prints errors.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
