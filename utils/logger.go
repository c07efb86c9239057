package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger and installs it as the zap global so
// the terminal helpers below share its level and sink.
func NewLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cfg.DisableStacktrace = true
	if json {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func Info(format string, a ...interface{}) {
	zap.S().Infof(format, a...)
}

func Success(format string, a ...interface{}) {
	zap.S().With("status", "ok").Infof(format, a...)
}

func Warn(format string, a ...interface{}) {
	zap.S().Warnf(format, a...)
}

func Error(format string, a ...interface{}) {
	zap.S().Errorf(format, a...)
}

func Section(title string) {
	zap.S().Infof("══════════ %s ══════════", title)
}
