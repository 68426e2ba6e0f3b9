// Package logger provides component-scoped structured logging for orderflow.
// Every call site names its component ("queue", "manager", "api", ...) so the
// resulting stream can be filtered per subsystem.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const simpleTimeFormat = "02-01-2006 15:04:05"

var (
	mu  sync.RWMutex
	log = newLogger("production", "info", nil)
)

// Init reconfigures the package logger. Development environments get human
// readable console output, everything else emits JSON for ingestion.
func Init(env, level string, writers ...io.Writer) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	log = newLogger(env, lvl.String(), writers)
	return nil
}

func newLogger(env, level string, writers []io.Writer) zerolog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = simpleTimeFormat
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	if len(writers) > 0 {
		output = io.MultiWriter(writers...)
	} else if strings.EqualFold(env, "development") || strings.EqualFold(env, "dev") {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: simpleTimeFormat}
	} else {
		output = os.Stdout
	}

	return zerolog.New(output).With().Timestamp().Logger().Level(lvl)
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	return zerolog.ParseLevel(strings.ToLower(level))
}

// current snapshots the package logger under the read lock. The copy is
// returned by pointer because zerolog's level methods have pointer receivers.
func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func emit(e *zerolog.Event, component, msg string, fields map[string]interface{}) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(current().Debug(), component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(current().Debug(), component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(current().Info(), component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(current().Info(), component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { emit(current().Warn(), component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(current().Warn(), component, msg, fields)
}

// ErrorC logs an error message for a component.
func ErrorC(component, msg string) { emit(current().Error(), component, msg, nil) }

// ErrorCF logs an error message with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(current().Error(), component, msg, fields)
}
