package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(DebugLevel)

	logger.Debug("Debug message", String("key", "value"))
	logger.Info("Info message", Int("count", 42))
	logger.Warn("Warning message", Bool("flag", true))
	logger.Error("Error message", ErrorField(errors.New("test error")))

	output := buf.String()

	for _, want := range []string{"Debug message", "Info message", "Warning message", "Error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output", want)
		}
	}

	if !strings.Contains(output, "key=value") {
		t.Error("Expected key=value in output")
	}
	if !strings.Contains(output, "count=42") {
		t.Error("Expected count=42 in output")
	}
	if !strings.Contains(output, "flag=true") {
		t.Error("Expected flag=true in output")
	}
	if !strings.Contains(output, `error="test error"`) {
		t.Errorf("Expected quoted error in output, got %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()

	if strings.Contains(output, "Debug message") {
		t.Error("Debug message should be filtered out")
	}
	if strings.Contains(output, "Info message") {
		t.Error("Info message should be filtered out")
	}
	if !strings.Contains(output, "Warning message") {
		t.Error("Expected warning message in output")
	}
	if !strings.Contains(output, "Error message") {
		t.Error("Expected error message in output")
	}
}

func TestDerivedLoggersShareLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	child := logger.WithFields(String("component", "session"))

	logger.SetLevel(ErrorLevel)
	child.Info("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, ErrorLevel, child.GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.WithFields(String("session_id", "s-1")).Info("frame written",
		String("frame", "heartbeat"),
		Duration("elapsed", 1500*time.Millisecond),
		ErrorField(errors.New("short write")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "frame written", entry["msg"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "heartbeat", entry["frame"])
	assert.Equal(t, "1.5s", entry["elapsed"])
	assert.Equal(t, "short write", entry["error"])
	assert.Contains(t, entry, "time")
}

func TestTextFormatterLine(t *testing.T) {
	f := NewTextFormatter()
	f.DisableTimestamp = true

	data, err := f.Format(&Entry{
		Level:   WarnLevel,
		Message: "session closed",
		Fields: []Field{
			String("session_id", "s-9"),
			String("component", "transport"),
			String("reason", "auto_close"),
			String("note", ""),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "WARN  transport: session closed session_id=s-9 reason=auto_close note=\"\"\n", string(data))
}

func TestTextFormatterColors(t *testing.T) {
	f := NewTextFormatter()
	f.DisableTimestamp = true
	f.Colors = true

	data, err := f.Format(&Entry{Level: ErrorLevel, Message: "write failed"})
	require.NoError(t, err)
	assert.Equal(t, "\033[31mERROR\033[0m write failed\n", string(data))
}

func TestWithFieldsKeepsOrder(t *testing.T) {
	var buf bytes.Buffer
	f := NewTextFormatter()
	f.DisableTimestamp = true
	logger := New(&buf, f)

	base := logger.WithFields(String("stage", "open"), Int("n", 1))
	base.WithFields(String("stage", "closed")).Info("done", Bool("ok", true))
	base.Info("still open")

	assert.Equal(t, "INFO  done stage=closed n=1 ok=true\nINFO  still open stage=open n=1\n", buf.String())
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter("json")
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	f, err = NewFormatter("")
	require.NoError(t, err)
	assert.IsType(t, &TextFormatter{}, f)

	_, err = NewFormatter("xml")
	assert.Error(t, err)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	mcpErr := mcperrors.ToolNotFound("search").WithContext(&mcperrors.Context{
		RequestID: "req-7",
		SessionID: "s-2",
		Method:    "tools/call",
		Tool:      "search",
	})

	logger.WithError(fmt.Errorf("dispatch: %w", mcpErr)).Warn("request failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, float64(mcperrors.CodeMethodNotFound), entry["error_code"])
	assert.Equal(t, "not_found", entry["error_category"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "s-2", entry["session_id"])
	assert.Equal(t, "tools/call", entry["rpc_method"])
	assert.Equal(t, "search", entry["tool"])
	assert.NotContains(t, entry, "component")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	ctx := ContextWithRequestID(context.Background(), "abc")
	logger.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["request_id"])

	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestWithContextTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:  trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
	})
	logger.WithContext(trace.ContextWithSpanContext(context.Background(), sc)).Info("traced")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.NotContains(t, entry, "request_id")
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("dropped")
	logger.WithFields(String("a", "b")).Warn("dropped")
	assert.Greater(t, int(logger.GetLevel()), int(FatalLevel))
}

func TestConcurrentLogging(t *testing.T) {
	var buf safeBuffer
	logger := New(&buf, NewJSONFormatter())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := logger.WithFields(Int("worker", i))
			for j := 0; j < 25; j++ {
				child.Info("tick", Int("n", j))
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 200)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "interleaved line %q", line)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	var buf safeBuffer
	logger := New(&buf, NewJSONFormatter())

	var seenID string
	handler := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapped writer must keep flushing")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/sse", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "given-id", seenID)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "HTTP request completed", entry["msg"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, float64(5), entry["bytes"])
	assert.Equal(t, "given-id", entry["request_id"])
	assert.Equal(t, false, entry["stream"])
}

func TestRequestIDMiddleware(t *testing.T) {
	var seenID string
	handler := RequestIDMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))

	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "corr-1", seenID)

	fixed := RequestIDMiddleware(func() string { return "gen-1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
	}))
	rec = httptest.NewRecorder()
	fixed.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, "gen-1", seenID)
	assert.Equal(t, "gen-1", rec.Header().Get(RequestIDHeader))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
