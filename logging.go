// Copyright 2026 The Thorn Authors
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// logging.go wires the core's diagnostic output through logiface, the
// generic structured-logging facade used throughout the surrounding pack,
// with stumpy as the default JSON writer. The package-level default logger
// mirrors the teacher's package-level SetStructuredLogger design: logging
// is cross-cutting infrastructure shared by every Queue/Runtime in a
// process. A single Queue or Runtime can still override it via
// [WithQueueLogger] or [WithRuntimeLogger].
package thorn

import (
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type used by this package, specialised
// to stumpy's event type. Construct one with [NewLogger], or use
// [DefaultLogger].
type Logger = logiface.Logger[*stumpy.Event]

var (
	globalLogger   sync.RWMutex
	defaultLogger  *Logger
	noopLoggerOnce sync.Once
	noopLogger     *Logger
)

// NewLogger builds a stumpy-backed logger writing JSON lines to w at the
// given minimum level.
func NewLogger(w *os.File, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// SetDefaultLogger installs the logger returned by [DefaultLogger] when no
// explicit logger is supplied via [WithQueueLogger] or [WithRuntimeLogger].
func SetDefaultLogger(l *Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	defaultLogger = l
}

// DefaultLogger returns the process-wide default logger, lazily
// initialised to a stumpy writer on os.Stderr at Warning level the first
// time it's needed, so an embedding host that never configures logging
// still sees unhandled-rejection diagnostics without extra wiring.
func DefaultLogger() *Logger {
	globalLogger.RLock()
	l := defaultLogger
	globalLogger.RUnlock()
	if l != nil {
		return l
	}
	globalLogger.Lock()
	defer globalLogger.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(os.Stderr, logiface.LevelWarning)
	}
	return defaultLogger
}

// noOpLogger returns a logger configured at LevelDisabled, for hosts/tests
// that want the API surface without any output.
func noOpLogger() *Logger {
	noopLoggerOnce.Do(func() {
		noopLogger = stumpy.L.New(
			stumpy.L.WithStumpy(),
			stumpy.L.WithLevel(logiface.LevelDisabled),
		)
	})
	return noopLogger
}
