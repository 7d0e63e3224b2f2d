package config

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.Logger

// InitLogger builds the process-wide logger at the configured level.
// Unrecognized level strings fall back to info so a typo in LOG_LEVEL never
// blocks startup; the caller re-invokes this once the real config is loaded.
func InitLogger(logLevelStr string) (*zap.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(logLevelStr))
	if normalized == "warning" {
		normalized = "warn"
	}
	level, err := zapcore.ParseLevel(normalized)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	globalLogger = logger
	return logger, nil
}

// Cleanup flushes buffered log entries at shutdown.
func Cleanup() {
	if globalLogger != nil {
		globalLogger.Sync()
	}
}
