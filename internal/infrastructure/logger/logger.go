package logger

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	configured   bool
	mu           sync.RWMutex
)

// GetLogger returns the global logger instance. Until New runs it is an info level console logger.
func GetLogger() zerolog.Logger {
	mu.RLock()
	if configured {
		defer mu.RUnlock()
		return globalLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !configured {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		globalLogger = zerolog.New(consoleWriter).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		configured = true
	}
	return globalLogger
}

// New constructs a zerolog logger based on level and format configuration and installs it globally.
func New(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var writer zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		writer = zerolog.New(os.Stdout).With().Timestamp().Logger()
	case "console":
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writer = zerolog.New(consoleWriter).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	zerolog.SetGlobalLevel(lvl)

	mu.Lock()
	globalLogger = writer.Level(lvl)
	configured = true
	mu.Unlock()

	return GetLogger(), nil
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}
