// Package common provides logging utilities for the application
package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"log"
	"os"
	"strings"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragenboats logger.ILogger)
// --------------------------------------------------------------------------

// vosdLogger implements the ILogger interface with custom formatting
type vosdLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *vosdLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *vosdLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *vosdLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *vosdLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *vosdLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *vosdLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *vosdLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger.Factory function type; it returns
// a logger at INFO level writing to stdout.
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &vosdLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel and panics
// on any other value. lib/engine does not call it: its bootstrap keeps
// its own parseLogLevel copy of this mapping.
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers applies config.LogLevel to every named logger this
// process uses: the control-plane RPC loggers and the engine loggers
// (lib/engine and the packages it composes).
func InitLoggers(config ServerConfig) {
	logger.SetLoggerFactory(CreateLogger)

	level := ParseLogLevel(config.LogLevel)
	names := []string{
		"rpc", "transport/rpc", "cmd/serve",
		"engine", "heap", "gc", "dtx", "object", "btree", "extent", "ilog", "hlc",
	}
	for _, name := range names {
		logger.GetLogger(name).SetLevel(level)
	}
}
