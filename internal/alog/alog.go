// Package alog is a minimal bracketed-tag logger used by the data-path
// subsystems for their occasional diagnostic lines (state transitions,
// drop-rate reports, report and lane-file write failures). It wraps the standard
// library's log.Logger rather than pulling in a structured logging
// dependency, matching the teacher's own habit of never reaching past
// "log" for diagnostics.
package alog

import (
	"log"
	"os"
)

// Logger renders lines as "[atfcore][<subsystem>][<LEVEL>] <message>",
// the same shape as the original backend's bp_emit_log.
type Logger struct {
	subsystem string
	std       *log.Logger
}

// New returns a Logger tagged with subsystem, writing to os.Stderr.
func New(subsystem string) *Logger {
	return &Logger{
		subsystem: subsystem,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) log(level, format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	prefix := "[atfcore][" + l.subsystem + "][" + level + "] "
	l.std.Printf(prefix+format, args...)
}

// Trace logs a low-volume, high-frequency diagnostic (state transitions).
func (l *Logger) Trace(format string, args ...any) { l.log("TRACE", format, args...) }

// Info logs a routine diagnostic.
func (l *Logger) Info(format string, args ...any) { l.log("INFO", format, args...) }

// Warn logs a recoverable failure (report text/JSON write failure, lane file open failure).
func (l *Logger) Warn(format string, args ...any) { l.log("WARN", format, args...) }
