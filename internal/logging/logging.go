/*
 * CapMaster - Cross-Capture TCP Correlation Toolkit
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHORS DISCLAIM ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS.
 */

// Package logging constructs the shared zap logger used across the
// pipeline, mirroring the package-level logger pattern the teacher uses
// for its stream and reassembly loggers.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	global *zap.Logger
)

// New builds a zap.Logger. debug selects zap's development config
// (console encoding, colored levels); otherwise JSON production encoding
// is used so log output stays machine-parseable when piped to a collector.
func New(debug bool) *zap.Logger {
	var cfg zap.Config

	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than crash on logger setup.
		return zap.NewNop()
	}

	return l
}

// Set installs l as the process-wide default returned by L().
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	global = l
}

// L returns the process-wide logger, building a quiet production logger
// on first use if none was installed yet.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if global == nil {
		global = New(false)
	}

	return global
}

// Named returns a child logger scoped to component, e.g. logging.Named("scorer").
func Named(component string) *zap.Logger {
	return L().Named(component)
}
