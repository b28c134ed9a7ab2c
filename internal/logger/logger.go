// Package logger provides leveled logging for the sweep pipeline.
// It wraps the standard log package with level-based filtering so that
// per-replication debug output can be silenced during production sweeps.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs per-step and per-replication detail; disabled for production sweeps.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs recoverable conditions such as per-replication failures.
	WarnLevel
	// ErrorLevel logs are high-priority and should be rare in a healthy sweep.
	ErrorLevel
)

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
// Format "text" includes source file locations; anything else is timestamp-only.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  ParseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

func emit(l Level, tag, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > l {
		return
	}
	_ = defaultLogger.logger.Output(3, fmt.Sprintf(tag+format, args...))
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	emit(DebugLevel, "[DEBUG] ", format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	emit(InfoLevel, "[INFO] ", format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	emit(WarnLevel, "[WARN] ", format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	emit(ErrorLevel, "[ERROR] ", format, args...)
}

// Fatal logs a message and exits
func Fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	if defaultLogger != nil {
		_ = defaultLogger.logger.Output(2, msg)
	} else {
		log.Print(msg)
	}
	os.Exit(1)
}
