// Package logging provides structured, leveled logging for the trust
// scanner batch processes. Output is JSON by default so scheduler logs
// stay machine-parseable; text format is available for local runs.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level represents the severity of a log message
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents the output format for logs
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides structured logging with bound fields
type Logger struct {
	level  Level
	format Format
	output io.Writer
	fields map[string]interface{}
}

type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a logger writing to stdout
func New(level Level, format Format) *Logger {
	if _, ok := levelRank[level]; !ok {
		level = LevelInfo
	}
	if format != FormatText {
		format = FormatJSON
	}
	return &Logger{
		level:  level,
		format: format,
		output: os.Stdout,
		fields: map[string]interface{}{},
	}
}

// WithField returns a logger with one extra bound field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with extra bound fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{level: l.level, format: l.format, output: l.output, fields: merged}
}

// WithError returns a logger with the error bound as a field
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// SetOutput redirects log output, used in tests
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

func (l *Logger) Debug(msg string) { l.log(LevelDebug, msg) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}
func (l *Logger) Info(msg string) { l.log(LevelInfo, msg) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}
func (l *Logger) Warn(msg string) { l.log(LevelWarn, msg) }
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}
func (l *Logger) Error(msg string) { l.log(LevelError, msg) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level Level, msg string) {
	if levelRank[level] < levelRank[l.level] {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     string(level),
		Message:   msg,
	}
	if len(l.fields) > 0 {
		e.Fields = l.fields
	}
	if l.format == FormatJSON {
		b, _ := json.Marshal(e)
		fmt.Fprintln(l.output, string(b))
		return
	}
	line := fmt.Sprintf("[%s] %s: %s", e.Timestamp, e.Level, e.Message)
	if len(e.Fields) > 0 {
		b, _ := json.Marshal(e.Fields)
		line += " fields=" + string(b)
	}
	fmt.Fprintln(l.output, line)
}

type loggerKey struct{}

// WithLogger binds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the bound logger, or a default info-level JSON logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return New(LevelInfo, FormatJSON)
}

// ParseLevel parses a level string, defaulting to info
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat parses a format string, defaulting to json
func ParseFormat(s string) Format {
	if s == "text" {
		return FormatText
	}
	return FormatJSON
}
