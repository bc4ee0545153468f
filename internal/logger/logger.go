package logger

import (
	"sync"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Per-device logging modes accepted in the config file.
const (
	ModeDebug    = "debug"
	ModeStandard = "standard"
	ModeNone     = "none"
)

var (
	// globalLogger holds the singleton logger instance.
	globalLogger *Logger
	once         sync.Once
)

// Get returns a singleton logger configured with the provided level.
// The first call initializes the logger; subsequent calls ignore the level
// and return the already initialized instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}

// LevelFor picks the process log level from the --debug flag and the
// platform logging option. The flag always wins.
func LevelFor(debugFlag bool, mode string) string {
	if debugFlag || mode == ModeDebug {
		return DebugLevel
	}
	return InfoLevel
}
