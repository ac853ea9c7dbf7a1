// Package logger provides leveled logging backed by zap.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var (
	level        = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base         = build(level)
	std   Logger = base.Sugar()
)

func build(lvl zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(logLevel string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a standalone Logger at the given level.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return build(zap.NewAtomicLevelAt(parseLevel(logLevel))).Sugar()
}

// SetGlobalLogLevel reconfigures the global logger's level.
func SetGlobalLogLevel(logLevel string) {
	level.SetLevel(parseLevel(logLevel))
}

// Zap returns the structured logger behind the global instance, without the
// caller skip used by the package-level helpers.
func Zap() *zap.Logger {
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes any buffered entries.
func Sync() {
	_ = Zap().Sync()
}

func get() Logger {
	return std
}

// Debug logs a debug message using the global logger.
func Debug(args ...interface{}) {
	get().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Info logs an informational message using the global logger.
func Info(args ...interface{}) {
	get().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warn logs a warning.
func Warn(args ...interface{}) {
	get().Warn(args...)
}

// Warnf logs a warning with formatting.
func Warnf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	get().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	get().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}
