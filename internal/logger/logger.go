package logger

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "tiny-dfr",
	})

	// Set log level from environment variable
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel parses a level name and applies it. Unknown or empty names
// select INFO.
func SetLevel(name string) {
	Logger.SetLevel(ParseLevel(name))
}

// ParseLevel maps a level name onto a charmbracelet/log level.
func ParseLevel(name string) log.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// With returns a child logger carrying the given key/value pairs.
func With(keyvals ...interface{}) *log.Logger {
	return Logger.With(keyvals...)
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}
