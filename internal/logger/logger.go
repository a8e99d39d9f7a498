package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	zapLevels = map[int]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}

	// Default to INFO in production, DEBUG in development
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	base     *zap.Logger
	baseOnce sync.Once
)

// Logger wraps a named zap logger with printf-style levels
type Logger struct {
	component string
	sugar     *zap.SugaredLogger
}

func root() *zap.Logger {
	baseOnce.Do(func() {
		var cfg zap.Config
		if IsDevelopment() {
			cfg = zap.NewDevelopmentConfig()
			level.SetLevel(zapcore.DebugLevel)
		} else {
			cfg = zap.NewProductionConfig()
		}
		cfg.Level = level

		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
	return base
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{
		component: component,
		sugar:     root().Named(component).Sugar(),
	}
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(l int) {
	if zl, ok := zapLevels[l]; ok {
		level.SetLevel(zl)
	}
}

// ParseLevel converts a level name such as "debug" into a Level constant.
// Unknown names map to LevelInfo.
func ParseLevel(name string) int {
	switch name {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Sync flushes buffered log entries
func Sync() {
	_ = root().Sync()
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value context
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{component: l.component, sugar: l.sugar.With(keysAndValues...)}
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
