// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

// LogLevel is a level name accepted by the logger.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLevels lists the accepted names.
var LogLevels = []string{
	string(LogLevelTrace), string(LogLevelDebug), string(LogLevelInfo),
	string(LogLevelWarn), string(LogLevelError),
}

// IsValid reports whether l is a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ErrInvalidLogLevel is returned by ParseLogLevel.
var ErrInvalidLogLevel = &Error{
	Field:   "logLevel",
	Message: "invalid log level (must be: trace, debug, info, warn, error)",
}

// ParseLogLevel parses s into a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(s)
	if !l.IsValid() {
		return "", ErrInvalidLogLevel
	}
	return l, nil
}
