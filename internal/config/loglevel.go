package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LogLevel is the log verbosity configured in the config file.
type LogLevel string

const (
	LogLevelOff   LogLevel = "off"
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
	LogLevelTrace LogLevel = "trace"
)

// slog has no trace or off levels, so they sit just outside its range.
const (
	slogLevelTrace = slog.LevelDebug - 4
	slogLevelOff   = slog.LevelError + 4
)

// ValidLogLevels returns all valid log level values.
func ValidLogLevels() []LogLevel {
	return []LogLevel{
		LogLevelOff,
		LogLevelError,
		LogLevelWarn,
		LogLevelInfo,
		LogLevelDebug,
		LogLevelTrace,
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
// Matching is case-insensitive so "Info" and "info" are both accepted.
func (l *LogLevel) UnmarshalText(text []byte) error {
	s := LogLevel(strings.ToLower(strings.TrimSpace(string(text))))
	for _, valid := range ValidLogLevels() {
		if s == valid {
			*l = s
			return nil
		}
	}
	return fmt.Errorf("invalid log level %q, must be one of: %v", string(text), ValidLogLevels())
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l), nil
}

// SlogLevel maps the log level onto a slog.Level.
// An empty value maps to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelOff:
		return slogLevelOff
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelTrace:
		return slogLevelTrace
	default:
		return slog.LevelInfo
	}
}
