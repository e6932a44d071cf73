// Package logging provides the process-wide logger for wamcp.
// Use dot import to access L_info, L_error, etc. directly.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Level is a wamcp log level.
type Level int

const (
	LevelFatal Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a config/flag string onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

var (
	current atomic.Pointer[log.Logger]

	// Set once shutdown begins so late callbacks can stay quiet.
	shuttingDown int32
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      Level
	TimeFormat string
	ShowCaller bool
	JSON       bool
	Output     io.Writer
}

// DefaultLogConfig returns sensible defaults
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:      LevelInfo,
		TimeFormat: "15:04:05",
		ShowCaller: false,
		Output:     os.Stderr,
	}
}

// Init configures the global logger. It may be called again once the
// config file has been read; the new logger replaces the old one.
func Init(cfg *LogConfig) {
	current.Store(newLogger(cfg))
}

func newLogger(cfg *LogConfig) *log.Logger {
	if cfg == nil {
		cfg = DefaultLogConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "15:04:05"
	}

	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		ReportCaller:    cfg.ShowCaller,
		CallerOffset:    2, // logMsg -> L_* -> caller
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}

	l := log.NewWithOptions(out, opts)
	l.SetLevel(charmLevel(cfg.Level))
	return l
}

// get returns the active logger, creating a default one on first use.
func get() *log.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	current.CompareAndSwap(nil, newLogger(nil))
	return current.Load()
}

func charmLevel(level Level) log.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError, LevelFatal:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// logMsg logs msg with optional key/value pairs:
//
//	L_info("loaded", "key", val, ...)
//
// Printf-style messages go through the L_*f variants instead.
func logMsg(level log.Level, msg string, keyvals ...interface{}) {
	logger := get()

	switch level {
	case log.DebugLevel:
		logger.Debug(msg, keyvals...)
	case log.InfoLevel:
		logger.Info(msg, keyvals...)
	case log.WarnLevel:
		logger.Warn(msg, keyvals...)
	case log.ErrorLevel:
		logger.Error(msg, keyvals...)
	case log.FatalLevel:
		logger.Fatal(msg, keyvals...)
	}
}

// L_trace logs at trace level (mapped to debug)
func L_trace(msg string, keyvals ...interface{}) {
	logMsg(log.DebugLevel, msg, keyvals...)
}

// L_debug logs at debug level
func L_debug(msg string, keyvals ...interface{}) {
	logMsg(log.DebugLevel, msg, keyvals...)
}

// L_info logs at info level
func L_info(msg string, keyvals ...interface{}) {
	logMsg(log.InfoLevel, msg, keyvals...)
}

// L_warn logs at warn level
func L_warn(msg string, keyvals ...interface{}) {
	logMsg(log.WarnLevel, msg, keyvals...)
}

// L_error logs at error level
func L_error(msg string, keyvals ...interface{}) {
	logMsg(log.ErrorLevel, msg, keyvals...)
}

// L_fatal logs at fatal level and exits
func L_fatal(msg string, keyvals ...interface{}) {
	logMsg(log.FatalLevel, msg, keyvals...)
}

// Printf-style variants.
func L_tracef(format string, args ...interface{}) { logMsg(log.DebugLevel, fmt.Sprintf(format, args...)) }
func L_debugf(format string, args ...interface{}) { logMsg(log.DebugLevel, fmt.Sprintf(format, args...)) }
func L_infof(format string, args ...interface{})  { logMsg(log.InfoLevel, fmt.Sprintf(format, args...)) }
func L_warnf(format string, args ...interface{})  { logMsg(log.WarnLevel, fmt.Sprintf(format, args...)) }
func L_errorf(format string, args ...interface{}) { logMsg(log.ErrorLevel, fmt.Sprintf(format, args...)) }

// SetLevel changes the log level at runtime
func SetLevel(level Level) {
	get().SetLevel(charmLevel(level))
}

// CurrentLevel returns the active level as understood by the underlying logger.
func CurrentLevel() Level {
	switch get().GetLevel() {
	case log.DebugLevel:
		return LevelDebug
	case log.WarnLevel:
		return LevelWarn
	case log.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// SetShuttingDown marks the application as shutting down
func SetShuttingDown() {
	atomic.StoreInt32(&shuttingDown, 1)
	L_info("shutting down")
}

// IsShuttingDown returns true if application is shutting down
func IsShuttingDown() bool {
	return atomic.LoadInt32(&shuttingDown) == 1
}

// L_elapsed logs with elapsed time since start
func L_elapsed(start time.Time, msg string, args ...interface{}) {
	args = append(args, "elapsed", time.Since(start).String())
	logMsg(log.InfoLevel, msg, args...)
}
