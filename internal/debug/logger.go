// Package debug provides the process-wide structured logger using log/slog
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	// logger is the global logger instance
	logger *slog.Logger
	// enabled indicates if debug logging is enabled
	enabled bool
	// out is where records are written
	out io.Writer = os.Stderr
	// json selects the JSON handler instead of the text handler
	json bool
	// mu protects the fields above
	mu sync.RWMutex
)

func init() {
	Init(false)
}

// Init initializes the logger.
// If enable is true, debug records are written; otherwise only warnings and
// errors are, so that fallbacks such as an unknown DB_PROVIDER stay visible.
func Init(enable bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable
	rebuild()
}

// SetOutput redirects log output. Tests use it to capture records.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	rebuild()
}

// SetJSON switches between the JSON and text handlers.
func SetJSON(on bool) {
	mu.Lock()
	defer mu.Unlock()

	json = on
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	level := slog.LevelWarn
	if enabled {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger = slog.New(handler)
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
