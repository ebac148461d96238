package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TextFormatter renders entries as human-readable lines:
//
//	2026-01-02T15:04:05.000Z INFO  flushed partition key=... records=12
type TextFormatter struct{}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, "%-5s ", entry.Level.String())
	buf.WriteString(entry.Message)
	for _, field := range entry.Fields {
		fmt.Fprintf(&buf, " %s=%v", field.Key, field.Value)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]interface{}, len(entry.Fields)+3)
	obj["ts"] = entry.Timestamp.UTC().Format(time.RFC3339Nano)
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	for _, field := range entry.Fields {
		obj[field.Key] = field.Value
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ConsoleOutput writes formatted entries to stderr.
type ConsoleOutput struct {
	mu sync.Mutex
}

// NewConsoleOutput creates a stderr output.
func NewConsoleOutput() *ConsoleOutput { return &ConsoleOutput{} }

// Write implements Output.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := os.Stderr.Write(formatted)
	return err
}

// Close implements Output.
func (o *ConsoleOutput) Close() error { return nil }
