package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled, printf-style logging throughout the application.
// It wraps a zap SugaredLogger so structured fields can be attached with With.
type Logger struct {
	s *zap.SugaredLogger
}

// NewLoggerWithLevel creates a console Logger at the given level name
// ("debug", "info", "warn", "error"). Unknown names fall back to info.
func NewLoggerWithLevel(level string) *Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.CallerKey = ""

	enc := zapcore.NewConsoleEncoder(encCfg)
	atLeast := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl })
	below := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl && l < zapcore.ErrorLevel })
	above := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel && atLeast(l) })

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), below),
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), above),
	)
	return &Logger{s: zap.New(core).Sugar()}
}

// NewNopLogger returns a Logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// With returns a child Logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

// Sync flushes any buffered entries.
func (l *Logger) Sync() {
	_ = l.s.Sync()
}

func (l *Logger) Info(format string, args ...any) {
	l.s.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.s.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.s.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.s.Debugf(format, args...)
}
