package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

func newTestMetrics(t *testing.T) *PrometheusMetricsProvider {
	t.Helper()
	m, err := NewMetricsProvider(MetricsConfig{ServiceName: "test", ServiceVersion: "1.0.0"})
	require.NoError(t, err)
	return m
}

func TestProvidersUseSeparateRegistries(t *testing.T) {
	first := newTestMetrics(t)
	second := newTestMetrics(t)

	first.RecordFrame(context.Background(), "data")
	assert.Equal(t, float64(1), testutil.ToFloat64(first.framesTotal.WithLabelValues("data")))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.framesTotal.WithLabelValues("data")))
}

func TestSessionMetrics(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSessionOpened(ctx, "stream")
	m.RecordSessionOpened(ctx, "stream")
	m.RecordSessionClosed(ctx, "stream", "auto_close", 50*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.activeSessions.WithLabelValues("stream")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sessionsTotal.WithLabelValues("stream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionCloses.WithLabelValues("stream", "auto_close")))
}

func TestRequestAndToolMetrics(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, "tools/call", OutcomeOK, 3*time.Millisecond)
	m.RecordRequest(ctx, "tools/call", "method_not_found", time.Millisecond)
	m.RecordToolCall(ctx, "search", "error", 2*time.Millisecond)
	m.RecordWriteError(ctx, "heartbeat")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestTotal.WithLabelValues("tools/call", OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestTotal.WithLabelValues("tools/call", "method_not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.toolCallTotal.WithLabelValues("search", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.writeErrors.WithLabelValues("heartbeat")))
}

func TestMetricsHandler(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordSessionOpened(context.Background(), "exchange")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "mcp_sessions_total")
	assert.Contains(t, body, `service="test"`)
	assert.Contains(t, body, `mode="exchange"`)
}

func TestMetricsStandaloneServer(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	// Without an address Start is a no-op.
	noAddr := newTestMetrics(t)
	require.NoError(t, noAddr.Start(context.Background()))
	require.NoError(t, noAddr.Shutdown(context.Background()))

	require.NoError(t, m.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}

func TestRuntimeCollectors(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{IncludeRuntimeCollectors: true})
	require.NoError(t, err)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestOutcomeLabel(t *testing.T) {
	ok, err := protocol.NewResponse(protocol.NumberID(1), protocol.PingResult{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeOK, OutcomeLabel(ok))
	assert.Equal(t, OutcomeOK, OutcomeLabel(nil))
	assert.Equal(t, "parse_error", OutcomeLabel(protocol.NewErrorResponse(protocol.NullID(), protocol.ParseError, "Parse error", nil)))
	assert.Equal(t, "invalid_params", OutcomeLabel(protocol.NewErrorResponse(protocol.NullID(), protocol.InvalidParams, "Invalid params", nil)))
	assert.Equal(t, "unknown_error", OutcomeLabel(protocol.NewErrorResponse(protocol.NullID(), protocol.ErrorCode(-1), "x", nil)))
}

func TestMetricMethodBoundsCardinality(t *testing.T) {
	assert.Equal(t, "tools/call", metricMethod("tools/call"))
	assert.Equal(t, "other", metricMethod("resources/list"))
	assert.Equal(t, "none", metricMethod(""))
}
