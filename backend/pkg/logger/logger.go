// Package logger owns the process-wide zap instance. Init wires it once
// at startup; everything else reaches it through Get.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.Logger

// Init builds the global logger for the given environment: JSON at info
// level in production, colored console at debug everywhere else. Both
// encoders stamp entries with an ISO8601 "timestamp" field.
func Init(env string) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	global = built
	return nil
}

// Sync flushes buffered entries; safe to call before Init has run
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

// Get returns the global logger. Before Init runs (tests, one-off
// scripts) it hands back a throwaway development logger instead of nil.
func Get() *zap.Logger {
	if global == nil {
		fallback, _ := zap.NewDevelopment()
		return fallback
	}
	return global
}
