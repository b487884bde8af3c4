// Package rlog provides the daemon's structured logging, replacing the
// teacher's plain *log.Logger-to-file pair with zap (see SPEC_FULL.md
// Ambient Stack). The call surface (Debugf/Infof/Warnf/Errorf) mirrors
// the teacher's Infof/Errorf shape so callers read the same either way.
package rlog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the subset of behavior the rest of the daemon depends on,
// so tests can substitute a no-op or recording implementation without
// pulling in zap.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger writing JSON lines to
// <cacheDir>/logs/repeatd.log, additionally echoing to stderr when
// verbose is set (the teacher's logging.NewLogger resolves the same
// cache-dir-relative log file; this just swaps the encoder/backend).
func New(cacheDir string, verbose bool) (Logger, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("cache directory required")
	}
	logDir := filepath.Join(cacheDir, "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logPath := filepath.Join(logDir, "repeatd.log")

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(cfg)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.DebugLevel),
	}
	if verbose {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return &zapLogger{sugar: logger.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests and for
// components that choose not to log.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Sync() error                       { return l.sugar.Sync() }
