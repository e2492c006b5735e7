// Package rlog is a small opinionated shell around zap, mirroring the
// shape of alcionai/clues's clog package: one process-wide logger
// builder, a Settings struct for the handful of knobs Racer needs, and
// an adapter that lets the logger double as an events.ErrorSink.
package rlog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Settings configures the logger built by New.
type Settings struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to
	// "warn" when empty.
	Level string
	// Development enables human-readable console output instead of
	// JSON — useful from the CLI.
	Development bool
}

func (s Settings) level() zapcore.Level {
	switch s.Level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// Logger wraps a *zap.SugaredLogger with the Report method needed to
// satisfy events.ErrorSink directly.
type Logger struct {
	zsl *zap.SugaredLogger
}

var (
	mu      sync.Mutex
	singles = map[Settings]*Logger{}
)

// New builds (or reuses) a Logger for the given Settings.
func New(set Settings) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := singles[set]; ok {
		return l
	}

	var zcfg zap.Config
	if set.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(set.level())

	zlog, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op core rather than panic: a logger must
		// never be the reason a library call fails.
		zlog = zap.NewNop()
	}

	l := &Logger{zsl: zlog.Sugar()}
	singles[set] = l
	return l
}

// Debugw logs a debug-level message with structured key/value pairs.
func (l *Logger) Debugw(msg string, kv ...any) { l.zsl.Debugw(msg, kv...) }

// Infow logs an info-level message with structured key/value pairs.
func (l *Logger) Infow(msg string, kv ...any) { l.zsl.Infow(msg, kv...) }

// Warnw logs a warn-level message with structured key/value pairs.
func (l *Logger) Warnw(msg string, kv ...any) { l.zsl.Warnw(msg, kv...) }

// Errorw logs an error-level message with structured key/value pairs.
func (l *Logger) Errorw(msg string, kv ...any) { l.zsl.Errorw(msg, kv...) }

// Report implements events.ErrorSink by logging err at warn level —
// per SPEC_FULL.md §9.1, "fatal" escalation is a log field, not a
// process exit.
func (l *Logger) Report(err error) {
	if err == nil {
		return
	}
	l.zsl.Warnw("racer: reported error", "error", err, "escalation", "fatal")
}

// Sync flushes any buffered log entries; callers should defer it at
// process shutdown.
func (l *Logger) Sync() error {
	return l.zsl.Sync()
}
