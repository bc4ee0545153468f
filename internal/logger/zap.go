package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
	level zapcore.Level
}

// defaultZapLevel defines the fallback log level when an unknown level string is provided.
const defaultZapLevel = zapcore.DebugLevel

// toZapLevel converts a textual level to zapcore.Level using known level constants.
func toZapLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

// newConsoleCore builds a zapcore.Core with a console encoder targeting stdout.
func newConsoleCore(level zapcore.Level) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	ws := zapcore.Lock(os.Stdout) // thread-safe writer
	return zapcore.NewCore(encoder, zapcore.AddSync(ws), zap.NewAtomicLevelAt(level))
}

// newZapLogger constructs a sugared zap logger with the provided level string.
func newZapLogger(levelStr string) *Logger {
	level := toZapLevel(levelStr)
	return &Logger{
		SugaredLogger: zap.New(newConsoleCore(level)).Sugar(),
		level:         level,
	}
}

// Nop returns a logger that discards everything. Handy for tests.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), level: zapcore.FatalLevel}
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name), level: l.level}
}

// ForDevice returns a logger for a single probe honoring its logging mode.
// "none" silences the device entirely; "debug" lowers the level to debug even
// when the process runs at info; anything else inherits the parent level.
func (l *Logger) ForDevice(id, mode string) *Logger {
	switch mode {
	case ModeNone:
		return Nop()
	case ModeDebug:
		if l.level > zapcore.DebugLevel {
			child := zap.New(newConsoleCore(zapcore.DebugLevel)).Sugar().With("device", id)
			return &Logger{SugaredLogger: child, level: zapcore.DebugLevel}
		}
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With("device", id), level: l.level}
}

// DebugEnabled reports whether debug entries will be written.
func (l *Logger) DebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}
