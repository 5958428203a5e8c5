// Package logging builds the process-wide zap logger, grounded on the
// teacher's cmd/server/main.go buildLogger.
package logging

import (
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// Build constructs a *zap.Logger for level ("debug", "info", "warn",
// "error"), development-formatted for debug and production-formatted
// (JSON) otherwise, matching the teacher's dev/prod config switch.
func Build(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// GORMLevel maps the application log level to a gorm logger verbosity,
// used when wiring internal/persist's SQLDriver.
func GORMLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}
