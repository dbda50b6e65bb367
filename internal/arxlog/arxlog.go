// Package arxlog provides the toolchain's structured logging side channel.
//
// Every pipeline stage (codegen, link, module loading, VM execution) logs
// through a *Logger built here rather than fmt.Println, so verbosity is a
// single knob (-debug/-trace) and log lines never interleave unpredictably
// with the program output the VM writes to stdout on its own. Program
// output (system.writeln, OUTINT, ...) never goes through this package.
package arxlog

import (
	"go.uber.org/zap"
)

// Logger wraps a sugared zap logger with the toolchain's verbosity model.
type Logger struct {
	*zap.SugaredLogger
	trace bool
}

// New builds a Logger. debug raises the level to Debug; trace additionally
// marks the logger as accepting Trace-level instruction logging (zap has
// no Trace level, so Trace is carried as a boolean and gated by the VM
// itself before calling Tracef).
func New(debug, trace bool) *Logger {
	cfg := zap.NewDevelopmentConfig()
	if !debug && !trace {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Logger construction failing means the process environment is
		// broken beyond recovery (e.g. stderr unwritable); fall back to a
		// no-op logger rather than crash the compiler/VM over logging.
		l = zap.NewNop()
	}
	return &Logger{SugaredLogger: l.Sugar(), trace: trace}
}

// Nop returns a Logger that discards everything, used by tests and by
// library-style callers that don't want log noise.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// TraceEnabled reports whether -trace was requested.
func (l *Logger) TraceEnabled() bool { return l.trace }

// Tracef logs an instruction-level trace line at Debug level, gated by
// TraceEnabled so callers don't pay formatting cost when tracing is off.
func (l *Logger) Tracef(format string, args ...interface{}) {
	if l == nil || !l.trace {
		return
	}
	l.Debugf(format, args...)
}

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}
