package log

import (
	"os"
	"time"
)

// Level represents the severity of a log message.
type Level int

// Log levels, in increasing severity.
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Field is a single structured key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Str builds a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 builds an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Dur builds a duration field rendered in milliseconds.
func Dur(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.Milliseconds()}
}

// Err builds an error field under the conventional "error" key.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any builds a field holding an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Component tags entries with the emitting component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }

// Entry is a single log entry handed to formatters and outputs.
type Entry struct {
	Level     Level
	Message   string
	Fields    []Field
	Timestamp time.Time
}

// Formatter renders an Entry to bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// Logger is the logging interface passed between rewind components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a child logger with the given fields bound.
	With(fields ...Field) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// LoggerOption configures a logger at construction time.
type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger over a formatter and one or more outputs.
type BaseLogger struct {
	level     Level
	fields    []Field
	formatter Formatter
	outputs   []Output
}

// NewLogger creates a logger. Defaults: info level, text format, stderr output.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{level: InfoLevel, formatter: &TextFormatter{}}
	for _, option := range options {
		option(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = append(l.outputs, NewConsoleOutput())
	}
	return l
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.level = level }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    append(append([]Field(nil), l.fields...), fields...),
		Timestamp: time.Now(),
	}
	formatted, err := l.formatter.Format(entry)
	if err != nil {
		return
	}
	for _, out := range l.outputs {
		_ = out.Write(entry, formatted)
	}
}

// Debug logs at debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }

// Info logs at info level.
func (l *BaseLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields) }

// Warn logs at warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields) }

// Error logs at error level.
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs at fatal level and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

// With returns a child logger with the given fields bound to every entry.
func (l *BaseLogger) With(fields ...Field) Logger {
	child := &BaseLogger{
		level:     l.level,
		fields:    append(append([]Field(nil), l.fields...), fields...),
		formatter: l.formatter,
		outputs:   l.outputs,
	}
	return child
}

// SetLevel sets the minimum log level.
func (l *BaseLogger) SetLevel(level Level) { l.level = level }

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level { return l.level }
