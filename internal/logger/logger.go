// Package logger builds the zap logger used across medtracker.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing at level in the given format ("json" or
// "console"). The returned AtomicLevel can change the level at runtime.
func New(level, format, service string) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevelAt(ParseLevel(level))

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.Level = atom

	base, err := cfg.Build()
	if err != nil {
		return nil, atom, err
	}

	if service != "" {
		base = base.With(zap.String("service", service))
	}
	if format == "json" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			base = base.With(zap.String("hostname", hostname))
		}
	}

	return base, atom, nil
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
