package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string

	// MetricsPath is the HTTP path the metrics handler is mounted on (default: /metrics)
	MetricsPath string
	// MetricsAddr, when set, makes Start serve metrics on a dedicated listener
	MetricsAddr string

	// Metric options
	Namespace        string    // Prometheus namespace (default: mcp)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Latency buckets in milliseconds

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// IncludeRuntimeCollectors adds the Go runtime and process collectors
	IncludeRuntimeCollectors bool
}

// MetricsProvider records server metrics
type MetricsProvider interface {
	// RecordRequest records one dispatched request and the JSON-RPC outcome
	RecordRequest(ctx context.Context, method, outcome string, duration time.Duration)
	// RecordToolCall records one data provider invocation
	RecordToolCall(ctx context.Context, tool, status string, duration time.Duration)
	// RecordSessionOpened records a new session in the given mode
	RecordSessionOpened(ctx context.Context, mode string)
	// RecordSessionClosed records a session teardown and its lifetime
	RecordSessionClosed(ctx context.Context, mode, reason string, lifetime time.Duration)
	// RecordFrame records a frame written to a stream
	RecordFrame(ctx context.Context, kind string)
	// RecordWriteError records a failed stream write
	RecordWriteError(ctx context.Context, kind string)

	// Handler serves the collected metrics
	Handler() http.Handler

	// Management
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus.
// Each provider owns its registry so several servers can live in one process.
type PrometheusMetricsProvider struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server
	mu       sync.Mutex

	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolCallTotal    *prometheus.CounterVec
	activeSessions   *prometheus.GaugeVec
	sessionsTotal    *prometheus.CounterVec
	sessionCloses    *prometheus.CounterVec
	sessionLifetime  *prometheus.HistogramVec
	framesTotal      *prometheus.CounterVec
	writeErrors      *prometheus.CounterVec
}

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}

	constLabels := prometheus.Labels{}
	for k, v := range config.ConstLabels {
		constLabels[k] = v
	}
	if config.ServiceName != "" {
		constLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		constLabels["version"] = config.ServiceVersion
	}
	config.ConstLabels = constLabels

	provider := &PrometheusMetricsProvider{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return provider, nil
}

func (p *PrometheusMetricsProvider) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   p.config.Namespace,
		Subsystem:   p.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: p.config.ConstLabels,
	}, labels)
}

func (p *PrometheusMetricsProvider) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   p.config.Namespace,
		Subsystem:   p.config.Subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: p.config.ConstLabels,
	}, labels)
}

func (p *PrometheusMetricsProvider) initializeMetrics() {
	latency := p.config.HistogramBuckets

	p.requestTotal = p.counter("requests_total",
		"Total number of dispatched JSON-RPC requests", "method", "outcome")
	p.requestDuration = p.histogram("request_duration_milliseconds",
		"Duration of dispatched JSON-RPC requests in milliseconds", latency, "method", "outcome")

	p.toolCallTotal = p.counter("tool_calls_total",
		"Total number of data provider invocations", "tool", "status")
	p.toolCallDuration = p.histogram("tool_call_duration_milliseconds",
		"Duration of data provider invocations in milliseconds", latency, "tool", "status")

	p.activeSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   p.config.Namespace,
		Subsystem:   p.config.Subsystem,
		Name:        "active_sessions",
		Help:        "Number of open event stream sessions",
		ConstLabels: p.config.ConstLabels,
	}, []string{"mode"})
	p.sessionsTotal = p.counter("sessions_total",
		"Total number of event stream sessions opened", "mode")
	p.sessionCloses = p.counter("session_closes_total",
		"Total number of session teardowns by reason", "mode", "reason")
	p.sessionLifetime = p.histogram("session_lifetime_seconds",
		"Lifetime of event stream sessions in seconds", []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}, "mode")

	p.framesTotal = p.counter("frames_written_total",
		"Total number of frames written to event streams", "kind")
	p.writeErrors = p.counter("frame_write_errors_total",
		"Total number of failed frame writes", "kind")
}

func (p *PrometheusMetricsProvider) registerMetrics() error {
	all := []prometheus.Collector{
		p.requestDuration, p.requestTotal,
		p.toolCallDuration, p.toolCallTotal,
		p.activeSessions, p.sessionsTotal, p.sessionCloses, p.sessionLifetime,
		p.framesTotal, p.writeErrors,
	}
	if p.config.IncludeRuntimeCollectors {
		all = append(all,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	for _, c := range all {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the provider's registry, mainly for tests
func (p *PrometheusMetricsProvider) Registry() *prometheus.Registry {
	return p.registry
}

// RecordRequest records one dispatched request
func (p *PrometheusMetricsProvider) RecordRequest(ctx context.Context, method, outcome string, duration time.Duration) {
	ms := float64(duration.Microseconds()) / 1000
	p.requestDuration.WithLabelValues(method, outcome).Observe(ms)
	p.requestTotal.WithLabelValues(method, outcome).Inc()
}

// RecordToolCall records one data provider invocation
func (p *PrometheusMetricsProvider) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	ms := float64(duration.Microseconds()) / 1000
	p.toolCallDuration.WithLabelValues(tool, status).Observe(ms)
	p.toolCallTotal.WithLabelValues(tool, status).Inc()
}

// RecordSessionOpened records a new session
func (p *PrometheusMetricsProvider) RecordSessionOpened(ctx context.Context, mode string) {
	p.activeSessions.WithLabelValues(mode).Inc()
	p.sessionsTotal.WithLabelValues(mode).Inc()
}

// RecordSessionClosed records a session teardown
func (p *PrometheusMetricsProvider) RecordSessionClosed(ctx context.Context, mode, reason string, lifetime time.Duration) {
	p.activeSessions.WithLabelValues(mode).Dec()
	p.sessionCloses.WithLabelValues(mode, reason).Inc()
	p.sessionLifetime.WithLabelValues(mode).Observe(lifetime.Seconds())
}

// RecordFrame records a frame written to a stream
func (p *PrometheusMetricsProvider) RecordFrame(ctx context.Context, kind string) {
	p.framesTotal.WithLabelValues(kind).Inc()
}

// RecordWriteError records a failed stream write
func (p *PrometheusMetricsProvider) RecordWriteError(ctx context.Context, kind string) {
	p.writeErrors.WithLabelValues(kind).Inc()
}

// Handler serves the provider's registry in the Prometheus exposition format
func (p *PrometheusMetricsProvider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Start serves metrics on MetricsAddr. Without an address it does nothing and
// the handler is expected to be mounted on the main server.
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	if p.config.MetricsAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", p.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, p.Handler())

	p.mu.Lock()
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := p.server
	p.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv := p.server
	p.server = nil
	p.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(context.Context, string, string, time.Duration)       {}
func (NoopMetrics) RecordToolCall(context.Context, string, string, time.Duration)      {}
func (NoopMetrics) RecordSessionOpened(context.Context, string)                        {}
func (NoopMetrics) RecordSessionClosed(context.Context, string, string, time.Duration) {}
func (NoopMetrics) RecordFrame(context.Context, string)                                {}
func (NoopMetrics) RecordWriteError(context.Context, string)                           {}
func (NoopMetrics) Handler() http.Handler                                              { return http.NotFoundHandler() }
func (NoopMetrics) Start(context.Context) error                                        { return nil }
func (NoopMetrics) Shutdown(context.Context) error                                     { return nil }
