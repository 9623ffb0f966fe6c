// Package config loads server configuration from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/observability"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// Config holds all configuration for the server
type Config struct {
	// Server configuration
	Addr            string `json:"addr"`
	SSEPath         string `json:"sse_path"`
	ServerName      string `json:"server_name"`
	ServerVersion   string `json:"server_version"`
	ProtocolVersion string `json:"protocol_version"`
	Environment     string `json:"environment"`

	// StrictValidation checks tools/call arguments against the tool's input schema
	StrictValidation bool `json:"strict_validation"`

	// Session timings
	ListChangedDelay  time.Duration `json:"list_changed_delay"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	AutoCloseAfter    time.Duration `json:"auto_close_after"`
	DrainDelay        time.Duration `json:"drain_delay"`

	// HTTP limits
	MaxBodyBytes   int64    `json:"max_body_bytes"`
	AllowedOrigins []string `json:"allowed_origins"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Metrics
	EnableMetrics bool   `json:"enable_metrics"`
	MetricsPath   string `json:"metrics_path"`
	MetricsAddr   string `json:"metrics_addr"`

	// Tracing
	TracingExporter   string  `json:"tracing_exporter"`
	TracingEndpoint   string  `json:"tracing_endpoint"`
	TracingInsecure   bool    `json:"tracing_insecure"`
	TracingSampleRate float64 `json:"tracing_sample_rate"`

	// Graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Default returns the configuration used when no environment overrides are set
func Default() *Config {
	return &Config{
		Addr:              ":8080",
		SSEPath:           "/sse",
		ServerName:        "mcp-sse-server",
		ServerVersion:     "1.0.0",
		ProtocolVersion:   protocol.ProtocolRevision,
		Environment:       "development",
		ListChangedDelay:  100 * time.Millisecond,
		HeartbeatInterval: 25 * time.Second,
		AutoCloseAfter:    50 * time.Second,
		DrainDelay:        2500 * time.Millisecond,
		MaxBodyBytes:      1 << 20,
		AllowedOrigins:    []string{"*"},
		LogLevel:          "info",
		LogFormat:         "text",
		EnableMetrics:     true,
		MetricsPath:       "/metrics",
		TracingExporter:   string(observability.ExporterTypeNoop),
		TracingSampleRate: 1.0,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Load reads configuration from environment variables on top of Default.
// Values that cannot be parsed are reported together with Validate's findings.
func Load() (*Config, error) {
	d := Default()
	env := &envReader{}

	config := &Config{
		Addr:              env.get("MCP_ADDR", d.Addr),
		SSEPath:           env.get("MCP_SSE_PATH", d.SSEPath),
		ServerName:        env.get("MCP_SERVER_NAME", d.ServerName),
		ServerVersion:     env.get("MCP_SERVER_VERSION", d.ServerVersion),
		ProtocolVersion:   env.get("MCP_PROTOCOL_VERSION", d.ProtocolVersion),
		Environment:       env.get("MCP_ENVIRONMENT", d.Environment),
		StrictValidation:  env.getBool("MCP_STRICT_VALIDATION", d.StrictValidation),
		ListChangedDelay:  env.getDuration("MCP_LIST_CHANGED_DELAY", d.ListChangedDelay),
		HeartbeatInterval: env.getDuration("MCP_HEARTBEAT_INTERVAL", d.HeartbeatInterval),
		AutoCloseAfter:    env.getDuration("MCP_AUTO_CLOSE_AFTER", d.AutoCloseAfter),
		DrainDelay:        env.getDuration("MCP_DRAIN_DELAY", d.DrainDelay),
		MaxBodyBytes:      env.getInt64("MCP_MAX_BODY_BYTES", d.MaxBodyBytes),
		AllowedOrigins:    env.getStringSlice("MCP_ALLOWED_ORIGINS", d.AllowedOrigins),
		LogLevel:          env.get("MCP_LOG_LEVEL", d.LogLevel),
		LogFormat:         env.get("MCP_LOG_FORMAT", d.LogFormat),
		EnableMetrics:     env.getBool("MCP_ENABLE_METRICS", d.EnableMetrics),
		MetricsPath:       env.get("MCP_METRICS_PATH", d.MetricsPath),
		MetricsAddr:       env.get("MCP_METRICS_ADDR", d.MetricsAddr),
		TracingExporter:   env.get("MCP_TRACING_EXPORTER", d.TracingExporter),
		TracingEndpoint:   env.get("MCP_TRACING_ENDPOINT", d.TracingEndpoint),
		TracingInsecure:   env.getBool("MCP_TRACING_INSECURE", d.TracingInsecure),
		TracingSampleRate: env.getFloat("MCP_TRACING_SAMPLE_RATE", d.TracingSampleRate),
		ShutdownTimeout:   env.getDuration("MCP_SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
	}

	if err := errors.Join(env.err(), config.Validate()); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if !strings.HasPrefix(c.SSEPath, "/") {
		errs = append(errs, fmt.Errorf("sse path %q must start with /", c.SSEPath))
	}
	if c.ServerName == "" {
		errs = append(errs, errors.New("server name must not be empty"))
	}
	if c.ProtocolVersion == "" {
		errs = append(errs, errors.New("protocol version must not be empty"))
	}

	for name, d := range map[string]time.Duration{
		"list changed delay": c.ListChangedDelay,
		"heartbeat interval": c.HeartbeatInterval,
		"auto close":         c.AutoCloseAfter,
		"drain delay":        c.DrainDelay,
		"shutdown timeout":   c.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.NewFormatter(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.EnableMetrics && !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q must start with /", c.MetricsPath))
	}

	switch observability.ExporterType(c.TracingExporter) {
	case observability.ExporterTypeNoop, "":
	case observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
		if c.TracingEndpoint == "" {
			errs = append(errs, fmt.Errorf("tracing exporter %s requires an endpoint", c.TracingExporter))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing exporter %q", c.TracingExporter))
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing sample rate must be within [0, 1], got %v", c.TracingSampleRate))
	}

	return errors.Join(errs...)
}

// NewLogger builds the configured logger writing to w
func (c *Config) NewLogger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	formatter, err := logging.NewFormatter(c.LogFormat)
	if err != nil {
		return nil, err
	}

	logger := logging.New(w, formatter)
	logger.SetLevel(level)
	return logger, nil
}

// MetricsConfig returns the metrics settings for the observability package
func (c *Config) MetricsConfig() observability.MetricsConfig {
	return observability.MetricsConfig{
		ServiceName:              c.ServerName,
		ServiceVersion:           c.ServerVersion,
		MetricsPath:              c.MetricsPath,
		MetricsAddr:              c.MetricsAddr,
		IncludeRuntimeCollectors: true,
	}
}

// TracingConfig returns the tracing settings for the observability package
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:    c.ServerName,
		ServiceVersion: c.ServerVersion,
		Environment:    c.Environment,
		ExporterType:   observability.ExporterType(c.TracingExporter),
		Endpoint:       c.TracingEndpoint,
		Insecure:       c.TracingInsecure,
		SampleRate:     c.TracingSampleRate,
		NeverSample:    []string{protocol.MethodPing},
		SetGlobal:      true,
	}
}

// envReader reads typed environment values and remembers malformed ones
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) invalid(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

func (e *envReader) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
		e.invalid(key, value, err)
	}
	return defaultValue
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
		e.invalid(key, value, err)
	}
	return defaultValue
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		e.invalid(key, value, err)
	}
	return defaultValue
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
		e.invalid(key, value, err)
	}
	return defaultValue
}

// getStringSlice accepts a JSON array or a comma separated list
func (e *envReader) getStringSlice(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if strings.HasPrefix(value, "[") {
		var slice []string
		if err := json.Unmarshal([]byte(value), &slice); err != nil {
			e.invalid(key, value, err)
			return defaultValue
		}
		return slice
	}

	var slice []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			slice = append(slice, part)
		}
	}
	return slice
}
