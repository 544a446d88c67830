package logging

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelEnvVar selects the level when none is passed to Initialize.
	// Unset or empty means no output at all.
	LogLevelEnvVar = "WIFIPORTAL_LOG_LEVEL"

	// LogFormatEnvVar selects "console" (default) or "json" encoding.
	LogFormatEnvVar = "WIFIPORTAL_LOG_FORMAT"
)

var current atomic.Pointer[zap.Logger]

// Initialize builds the process logger. An empty level falls back to
// WIFIPORTAL_LOG_LEVEL; when that is empty too the logger discards
// everything. Unknown level names log at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		current.Store(zap.NewNop())
		return nil
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	if !strings.EqualFold(os.Getenv(LogFormatEnvVar), "json") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	current.Store(l)
	return nil
}

// InitializeFromEnv is Initialize("") for commands that stay quiet unless
// asked.
func InitializeFromEnv() error {
	return Initialize("")
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// SetLogger swaps the process logger; nil restores the silent default.
func SetLogger(l *zap.Logger) {
	current.Store(l)
}

// L returns the process logger, never nil.
func L() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Sync flushes buffered entries. Errors from syncing a terminal are
// expected and ignored.
func Sync() {
	_ = L().Sync()
}
