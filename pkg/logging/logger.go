// Package logging provides structured logging for the tool server.
// Loggers write one line per entry in text or JSON form. Fields keep the order
// they were added in, and errors raised by the server contribute their code,
// category and request context automatically.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
)

// Level represents the severity of a log message
type Level int32

const (
	DebugLevel Level = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
	// FatalLevel entries exit the process after being written
	FatalLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name such as "debug" or "WARN". The empty string
// means info.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for level, levelName := range levelNames {
		if strings.EqualFold(levelName, strings.TrimSpace(name)) {
			return level, nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// Field is one key-value pair attached to an entry
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field        { return Field{Key: key, Value: value} }

// ErrorField stores err under the "error" key
func ErrorField(err error) Field { return Field{Key: "error", Value: err} }

// Logger is the logging interface used across the server
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal writes the entry and exits with status 1
	Fatal(msg string, fields ...Field)

	// WithFields returns a child logger that adds fields to every entry.
	// A key given again replaces the earlier value in place.
	WithFields(fields ...Field) Logger
	// WithContext adds the request ID and trace ID carried by ctx
	WithContext(ctx context.Context) Logger
	// WithError adds err and, for server errors, its code, category and context
	WithError(err error) Logger

	// SetLevel changes the level of this logger and every logger derived from it
	SetLevel(level Level)
	GetLevel() Level
}

// Entry is one log line handed to a Formatter
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	// Fields are unique by key, in the order they were first added
	Fields []Field
}

// Lookup returns the value stored under key
func (e *Entry) Lookup(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Formatter renders an entry, including the trailing newline
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// sink is shared by a logger and all of its children
type sink struct {
	level     atomic.Int32
	mu        sync.Mutex
	out       io.Writer
	formatter Formatter
}

type logger struct {
	sink   *sink
	fields []Field
}

// New returns a logger at InfoLevel writing to out, or stdout when out is nil.
// A nil formatter selects plain text.
func New(out io.Writer, formatter Formatter) Logger {
	if out == nil {
		out = os.Stdout
	}
	if formatter == nil {
		formatter = NewTextFormatter()
	}
	s := &sink{out: out, formatter: formatter}
	s.level.Store(int32(InfoLevel))
	return &logger{sink: s}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	l := New(io.Discard, NewTextFormatter())
	l.SetLevel(FatalLevel + 1)
	return l
}

func (l *logger) Debug(msg string, fields ...Field) { l.write(DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { l.write(InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { l.write(WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.write(ErrorLevel, msg, fields) }

func (l *logger) Fatal(msg string, fields ...Field) {
	l.write(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *logger) SetLevel(level Level) { l.sink.level.Store(int32(level)) }
func (l *logger) GetLevel() Level      { return Level(l.sink.level.Load()) }

func (l *logger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &logger{sink: l.sink, fields: merge(l.fields, fields)}
}

func (l *logger) WithContext(ctx context.Context) Logger {
	var fields []Field
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, String("trace_id", sc.TraceID().String()))
	}
	return l.WithFields(fields...)
}

func (l *logger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	fields := []Field{ErrorField(err)}
	mcpErr, ok := mcperrors.AsMCPError(err)
	if !ok {
		return l.WithFields(fields...)
	}

	fields = append(fields,
		Int("error_code", mcpErr.Code()),
		String("error_category", string(mcpErr.Category())),
		String("error_severity", string(mcpErr.Severity())),
	)
	ec := mcpErr.Context()
	for _, f := range []Field{
		String("request_id", ec.RequestID),
		String("session_id", ec.SessionID),
		String("rpc_method", ec.Method),
		String("tool", ec.Tool),
		String("component", ec.Component),
		String("operation", ec.Operation),
		String("trace_id", ec.TraceID),
	} {
		if f.Value != "" {
			fields = append(fields, f)
		}
	}
	return l.WithFields(fields...)
}

func (l *logger) write(level Level, msg string, fields []Field) {
	if level < l.GetLevel() {
		return
	}

	entry := &Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  merge(l.fields, fields),
	}
	data, err := l.sink.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format entry: %v\n", err)
		return
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if _, err := l.sink.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "logging: write entry: %v\n", err)
	}
}

// merge returns base followed by extra, with later keys overwriting earlier
// ones in their original position. base is never modified.
func merge(base, extra []Field) []Field {
	out := make([]Field, len(base), len(base)+len(extra))
	copy(out, base)
next:
	for _, f := range extra {
		for i := range out {
			if out[i].Key == f.Key {
				out[i].Value = f.Value
				continue next
			}
		}
		out = append(out, f)
	}
	return out
}

type contextKey struct{}

// ContextWithRequestID returns a copy of ctx carrying a request ID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
