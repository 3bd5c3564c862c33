package dtlspsk

import (
	"os"

	"github.com/go-i2p/logger"
)

// log is the package-level logger instance backing Debug/Info/Warning/Error.
// It is initialized eagerly so every call site has a non-nil target; the
// underlying go-i2p/logger reads its level from the DEBUG_I2P environment
// variable the same way LogInit configures it below.
var log = logger.GetGoI2PLogger()

// LogLevel selects the verbosity passed to LogInit.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

// LogInit sets the DEBUG_I2P environment variable consulted by
// github.com/go-i2p/logger, matching the level names used throughout this
// package's Debug/Info/Warning/Error helpers.
func LogInit(level LogLevel) {
	switch level {
	case LevelWarning:
		os.Setenv("DEBUG_I2P", "warn")
	case LevelError, LevelFatal:
		os.Setenv("DEBUG_I2P", "error")
	default:
		os.Setenv("DEBUG_I2P", "debug")
	}
	log = logger.GetGoI2PLogger()
}

// Debug logs a debug-level message. args are applied with Sprintf semantics
// when present.
func Debug(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Debug(message)
		return
	}
	log.Debugf(message, args...)
}

// Info logs an informational message.
func Info(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Info(message)
		return
	}
	log.Infof(message, args...)
}

// Warning logs a warning.
func Warning(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Warn(message)
		return
	}
	log.Warnf(message, args...)
}

// Error logs an error.
func Error(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Error(message)
		return
	}
	log.Errorf(message, args...)
}
