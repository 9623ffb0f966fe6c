package observability

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/ajitpratap0/mcp-sse-server"

// Span attribute keys shared by request, session and tool spans
const (
	attrMethod      = attribute.Key("mcp.method")
	attrSessionID   = attribute.Key("mcp.session.id")
	attrSessionMode = attribute.Key("mcp.session.mode")
	attrRequestID   = attribute.Key("rpc.jsonrpc.request_id")
)

// ExporterType selects where finished spans go
type ExporterType string

const (
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	// ExporterTypeCustom exports through TracingConfig.Exporter
	ExporterTypeCustom ExporterType = "custom"
	// ExporterTypeNoop records spans but exports nothing
	ExporterTypeNoop ExporterType = "noop"
)

// TracingConfig configures the tracer provider. Zero values fall back to
// defaults: service "mcp-sse-server", sample rate 1 and the noop exporter.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	ExporterType ExporterType
	// Endpoint and Headers apply to the OTLP exporters
	Endpoint string
	Headers  map[string]string
	Insecure bool
	Exporter sdktrace.SpanExporter

	// Synchronous exports each span as it ends instead of batching
	Synchronous bool
	// SetGlobal installs the provider and propagator process-wide
	SetGlobal bool

	// SampleRate is the fraction of root request spans kept, within [0, 1]
	SampleRate float64
	// NeverSample lists JSON-RPC methods whose request spans are always dropped
	NeverSample []string

	BatchTimeout time.Duration
	MaxBatchSize int
	MaxQueueSize int

	ResourceAttributes map[string]string
}

func (c TracingConfig) withDefaults() TracingConfig {
	if c.ServiceName == "" {
		c.ServiceName = "mcp-sse-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "unknown"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterTypeNoop
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 512
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 2048
	}
	return c
}

// TracingProvider creates the spans for requests, sessions and tool calls
type TracingProvider struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewTracingProvider builds a provider from config. Exporters are created
// lazily by the OTLP clients, so an unreachable collector is not an error here.
func NewTracingProvider(config TracingConfig) (*TracingProvider, error) {
	config = config.withDefaults()

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(newResource(config)),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(config))),
	}
	if config.ExporterType != ExporterTypeNoop {
		exporter, err := newExporter(config)
		if err != nil {
			return nil, fmt.Errorf("create %s exporter: %w", config.ExporterType, err)
		}
		if config.Synchronous {
			opts = append(opts, sdktrace.WithSyncer(exporter))
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter,
				sdktrace.WithBatchTimeout(config.BatchTimeout),
				sdktrace.WithMaxExportBatchSize(config.MaxBatchSize),
				sdktrace.WithMaxQueueSize(config.MaxQueueSize),
			))
		}
	}

	tp := &TracingProvider{
		provider:   sdktrace.NewTracerProvider(opts...),
		propagator: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
	tp.tracer = tp.provider.Tracer(tracerName)

	if config.SetGlobal {
		otel.SetTracerProvider(tp.provider)
		otel.SetTextMapPropagator(tp.propagator)
	}
	return tp, nil
}

func newResource(config TracingConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	}
	for k, v := range config.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func newExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	var client otlptrace.Client
	switch config.ExporterType {
	case ExporterTypeCustom:
		if config.Exporter == nil {
			return nil, fmt.Errorf("no exporter given")
		}
		return config.Exporter, nil
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithHeaders(config.Headers),
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(config.Endpoint),
			otlptracehttp.WithHeaders(config.Headers),
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", config.ExporterType)
	}
	return otlptrace.New(context.Background(), client)
}

func newSampler(config TracingConfig) sdktrace.Sampler {
	var base sdktrace.Sampler
	switch {
	case config.SampleRate >= 1:
		base = sdktrace.AlwaysSample()
	case config.SampleRate <= 0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(config.SampleRate)
	}
	if len(config.NeverSample) == 0 {
		return base
	}

	skip := make(map[string]struct{}, len(config.NeverSample))
	for _, method := range config.NeverSample {
		skip[method] = struct{}{}
	}
	return &methodSampler{base: base, skip: skip}
}

// methodSampler drops spans whose mcp.method attribute is listed in skip and
// defers every other decision to base.
type methodSampler struct {
	base sdktrace.Sampler
	skip map[string]struct{}
}

func (s *methodSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, kv := range p.Attributes {
		if kv.Key != attrMethod {
			continue
		}
		if _, ok := s.skip[kv.Value.AsString()]; ok {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.Drop,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
		break
	}
	return s.base.ShouldSample(p)
}

func (s *methodSampler) Description() string {
	methods := make([]string, 0, len(s.skip))
	for m := range s.skip {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return fmt.Sprintf("MethodSampler{skip=[%s],base=%s}", strings.Join(methods, " "), s.base.Description())
}

var noopTracer = noop.NewTracerProvider().Tracer(tracerName)

func (tp *TracingProvider) activeTracer() trace.Tracer {
	if tp == nil {
		return noopTracer
	}
	return tp.tracer
}

// StartSpan starts a span. A nil provider starts non-recording spans.
func (tp *TracingProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.activeTracer().Start(ctx, name, opts...)
}

// StartRequestSpan starts the server span for one JSON-RPC request, named
// after its method, e.g. "mcp.tools/call"
func (tp *TracingProvider) StartRequestSpan(ctx context.Context, method, requestID string) (context.Context, trace.Span) {
	return tp.activeTracer().Start(ctx, "mcp."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attrMethod.String(method),
			semconv.RPCSystemKey.String("jsonrpc"),
			semconv.RPCMethod(method),
			attrRequestID.String(requestID),
		),
	)
}

// StartSessionSpan starts the span covering one stream or exchange session
func (tp *TracingProvider) StartSessionSpan(ctx context.Context, sessionID, mode string) (context.Context, trace.Span) {
	return tp.activeTracer().Start(ctx, "mcp.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attrMethod.String("session"),
			attrSessionID.String(sessionID),
			attrSessionMode.String(mode),
		),
	)
}

// RecordError marks the span in ctx as failed
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err, opts...)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds an event to the span in ctx
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// ExtractHTTP continues a W3C trace carried by request headers
func (tp *TracingProvider) ExtractHTTP(ctx context.Context, header http.Header) context.Context {
	if tp == nil {
		return ctx
	}
	return tp.propagator.Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectHTTP writes the trace in ctx into outgoing request headers
func (tp *TracingProvider) InjectHTTP(ctx context.Context, header http.Header) {
	if tp == nil {
		return
	}
	tp.propagator.Inject(ctx, propagation.HeaderCarrier(header))
}

// ForceFlush exports every ended span still queued
func (tp *TracingProvider) ForceFlush(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	return tp.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider. Later calls return the first result.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	tp.shutdownOnce.Do(func() {
		tp.shutdownErr = tp.provider.Shutdown(ctx)
	})
	return tp.shutdownErr
}
