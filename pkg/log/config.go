package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config captures the process-wide logging settings, typically sourced from
// REWIND_LOG_LEVEL and REWIND_LOG_FORMAT.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from a Config. Unknown formats are an error;
// an empty format means text.
func ApplyConfig(cfg *Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return NewLogger(WithLevel(level), WithFormatter(formatter)), nil
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg)
	}
	return len(p), nil
}

// RedirectStdLog routes standard-library log output through the given Logger.
// Pebble and net/http log via the stdlib logger; this keeps output uniform.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger.With(Component("stdlog"))})
}
