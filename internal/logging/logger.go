// Recgate - Order Recommendation Gateway and Cache
// Copyright 2026 Ordercast Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ordercast/recgate

// Package logging provides structured logging for Recgate built on zerolog.
//
// The package maintains a process-wide logger configured once at startup via
// Init. All other packages log through the package-level helpers
// (logging.Info(), logging.Error(), ...) so that output format and level are
// controlled in exactly one place.
//
// Two output formats are supported:
//   - "json": machine-readable JSON lines (production default)
//   - "console": human-readable colored output (development)
//
// Authentication failure details are logged here and recorded in the audit
// trail, but are never echoed to remote callers; handlers must keep the
// rejection response generic.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level to emit: trace, debug, info, warn, error.
	Level string

	// Format selects the output encoding: "json" or "console".
	Format string

	// Caller adds file:line of the call site to each entry.
	Caller bool

	// Output overrides the destination writer. Defaults to os.Stderr.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger = newLogger(Config{Level: "info", Format: "json"})
)

// Init configures the global logger. Call once at startup, before any
// component starts logging; later calls replace the logger atomically so
// tests may re-Init freely.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(cfg)
}

// newLogger builds a zerolog.Logger from cfg.
func newLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// parseLevel maps a level name to a zerolog level. Unknown names fall back
// to info rather than failing startup.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns a copy of the current global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Trace starts a trace-level event.
func Trace() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Trace()
}

// Debug starts a debug-level event.
func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Debug()
}

// Info starts an info-level event.
func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Info()
}

// Warn starts a warn-level event.
func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Warn()
}

// Error starts an error-level event.
func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Error()
}

// Err starts an error-level event when err is non-nil, otherwise info-level,
// mirroring zerolog's Err semantics.
func Err(err error) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Err(err)
}

// Fatal starts a fatal-level event. The process exits after Msg is written.
func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Fatal()
}

// NewTestLogger routes the global logger to w at debug level. Intended for
// tests that assert on log output.
func NewTestLogger(w io.Writer) {
	Init(Config{Level: "debug", Format: "json", Output: w})
}
