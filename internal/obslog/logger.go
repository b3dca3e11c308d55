// Package obslog provides the kernel's diagnostic logging facade.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Level mirrors logiface's severity levels, narrowed to the ones the kernel
// actually emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration.
type Config struct {
	Level  Level
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Output: os.Stderr}
}

// Logger wraps a logiface/stumpy logger with the level-gated, key-value
// call shape the kernel's diagnostics use throughout.
type Logger struct {
	l     *logiface.Logger[*stumpy.Event]
	level Level
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger creates a new logger writing structured JSON to config.Output.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		l:     stumpy.L.New(stumpy.L.WithStumpy(stumpy.WithWriter(output))),
		level: config.Level,
	}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) log(level Level, builder *logiface.Builder[*stumpy.Event], msg string, args ...any) {
	if level < l.level || builder == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, ok := args[i+1].(error); ok {
			builder = builder.Err(err)
			continue
		}
		builder = builder.Field(key, args[i+1])
	}
	builder.Log(msg)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, l.l.Debug(), msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, l.l.Info(), msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, l.l.Warning(), msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, l.l.Err(), msg, args...) }

// Global convenience functions, mirroring the package-level calls the
// teacher's own logging shim exposes.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
