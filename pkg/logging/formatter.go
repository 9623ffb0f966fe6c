package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TextFormatter writes entries as a single human-readable line:
//
//	2024-11-05T10:00:00.000Z WARN  transport: session closed session_id=s-9 reason=auto_close
//
// A "component" field becomes the message prefix. The other fields follow the
// message as key=value pairs, in entry order.
type TextFormatter struct {
	TimestampFormat  string
	DisableTimestamp bool
	// Colors wraps the level in ANSI color codes
	Colors bool
}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
}

var levelColors = map[Level]string{
	DebugLevel: "\033[90m",
	InfoLevel:  "\033[34m",
	WarnLevel:  "\033[33m",
	ErrorLevel: "\033[31m",
	FatalLevel: "\033[31m",
}

func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		buf.WriteString(entry.Time.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}

	level := fmt.Sprintf("%-5s", entry.Level)
	if color, ok := levelColors[entry.Level]; ok && f.Colors {
		level = color + level + "\033[0m"
	}
	buf.WriteString(level)
	buf.WriteByte(' ')

	if component, ok := entry.Lookup("component"); ok {
		fmt.Fprintf(&buf, "%v: ", component)
	}
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		if field.Key == "component" {
			continue
		}
		buf.WriteByte(' ')
		buf.WriteString(field.Key)
		buf.WriteByte('=')
		buf.WriteString(textValue(field.Value))
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func textValue(v interface{}) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []byte:
		s = string(val)
	case error:
		s = val.Error()
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// JSONFormatter writes entries as one JSON object per line. The time, level
// and msg keys come first, followed by the fields in entry order.
type JSONFormatter struct {
	TimestampFormat  string
	DisableTimestamp bool
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{TimestampFormat: time.RFC3339Nano}
}

func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	put := func(key string, value interface{}) error {
		switch val := value.(type) {
		case error:
			value = val.Error()
		case time.Duration:
			value = val.String()
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode field %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, _ := json.Marshal(key)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(encoded)
		return nil
	}

	if !f.DisableTimestamp {
		if err := put("time", entry.Time.Format(f.TimestampFormat)); err != nil {
			return nil, err
		}
	}
	if err := put("level", entry.Level.String()); err != nil {
		return nil, err
	}
	if err := put("msg", entry.Message); err != nil {
		return nil, err
	}
	for _, field := range entry.Fields {
		switch field.Key {
		case "time", "level", "msg":
			continue
		}
		if err := put(field.Key, field.Value); err != nil {
			return nil, err
		}
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// NewFormatter returns the formatter named by a LOG_FORMAT value: "text"
// (the default, without colors) or "json"
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return NewTextFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	}
	return nil, fmt.Errorf("unknown log format %q", name)
}
