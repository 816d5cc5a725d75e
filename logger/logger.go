// Package logger wraps a process-wide zap logger.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *zap.Logger

	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize sets up the logger with the specified log level.
// "debug" selects the development encoder; everything else logs JSON.
func Initialize(lvl string) error {
	parsed, err := parseLevel(lvl)
	if err != nil {
		return err
	}

	var config zap.Config
	if parsed == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level.SetLevel(parsed)
	config.Level = level

	built, err := config.Build()
	if err != nil {
		return err
	}
	Logger = built.Named("devrank")
	zap.ReplaceGlobals(Logger)

	return nil
}

// SetLevel changes the level of the running logger
func SetLevel(lvl string) error {
	parsed, err := parseLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

func parseLevel(lvl string) (zapcore.Level, error) {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	if lvl == "" {
		return zapcore.InfoLevel, nil
	}
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(lvl)); err != nil {
		return parsed, fmt.Errorf("invalid log level %q: %w", lvl, err)
	}
	return parsed, nil
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// With returns a child logger carrying fields. It never returns nil.
func With(fields ...zap.Field) *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger.With(fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	if Logger != nil {
		Logger.Debug(msg, fields...)
	}
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	if Logger != nil {
		Logger.Info(msg, fields...)
	}
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	if Logger != nil {
		Logger.Warn(msg, fields...)
	}
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	if Logger != nil {
		Logger.Error(msg, fields...)
	}
}
