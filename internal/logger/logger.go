package logger

import (
	"strings"
	"sync"
)

// Log levels accepted in config (log.level).
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger. The level passed on the first call
// wins; later calls return the same instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(normalizeLevel(level))
	})
	return globalLogger
}

func normalizeLevel(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}
