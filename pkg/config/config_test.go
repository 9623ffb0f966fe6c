package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-sse-server/pkg/observability"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/sse", cfg.SSEPath)
	assert.Equal(t, protocol.ProtocolRevision, cfg.ProtocolVersion)
	assert.False(t, cfg.StrictValidation)
	assert.Equal(t, 100*time.Millisecond, cfg.ListChangedDelay)
	assert.Equal(t, 25*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 50*time.Second, cfg.AutoCloseAfter)
	assert.Equal(t, 2500*time.Millisecond, cfg.DrainDelay)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MCP_ADDR", "127.0.0.1:9000")
	t.Setenv("MCP_STRICT_VALIDATION", "true")
	t.Setenv("MCP_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("MCP_AUTO_CLOSE_AFTER", "1m")
	t.Setenv("MCP_MAX_BODY_BYTES", "4096")
	t.Setenv("MCP_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MCP_LOG_FORMAT", "json")
	t.Setenv("MCP_TRACING_SAMPLE_RATE", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.True(t, cfg.StrictValidation)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.AutoCloseAfter)
	assert.Equal(t, int64(4096), cfg.MaxBodyBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 0.25, cfg.TracingSampleRate)
}

func TestAllowedOriginsJSON(t *testing.T) {
	t.Setenv("MCP_ALLOWED_ORIGINS", `["https://a.example"]`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
}

func TestLoadReportsMalformedValues(t *testing.T) {
	t.Setenv("MCP_STRICT_VALIDATION", "sometimes")
	t.Setenv("MCP_DRAIN_DELAY", "soon")
	t.Setenv("MCP_MAX_BODY_BYTES", "big")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "MCP_STRICT_VALIDATION")
	assert.Contains(t, msg, "MCP_DRAIN_DELAY")
	assert.Contains(t, msg, "MCP_MAX_BODY_BYTES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero heartbeat", mutate: func(c *Config) { c.HeartbeatInterval = 0 }, wantErr: "heartbeat interval"},
		{name: "negative drain", mutate: func(c *Config) { c.DrainDelay = -time.Second }, wantErr: "drain delay"},
		{name: "relative path", mutate: func(c *Config) { c.SSEPath = "sse" }, wantErr: "sse path"},
		{name: "body limit", mutate: func(c *Config) { c.MaxBodyBytes = 0 }, wantErr: "max body bytes"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "loud"},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "xml"},
		{name: "exporter", mutate: func(c *Config) { c.TracingExporter = "zipkin" }, wantErr: "zipkin"},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.TracingExporter = "otlp-grpc" }, wantErr: "endpoint"},
		{name: "sample rate", mutate: func(c *Config) { c.TracingSampleRate = 2 }, wantErr: "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"shown"`)
}

func TestObservabilityConfigs(t *testing.T) {
	cfg := Default()
	cfg.TracingExporter = "otlp-http"
	cfg.TracingEndpoint = "collector:4318"

	tc := cfg.TracingConfig()
	assert.Equal(t, observability.ExporterTypeOTLPHTTP, tc.ExporterType)
	assert.Equal(t, "collector:4318", tc.Endpoint)
	assert.Equal(t, cfg.ServerName, tc.ServiceName)
	assert.Contains(t, tc.NeverSample, protocol.MethodPing)

	mc := cfg.MetricsConfig()
	assert.Equal(t, "/metrics", mc.MetricsPath)
	assert.Equal(t, cfg.ServerVersion, mc.ServiceVersion)
}
