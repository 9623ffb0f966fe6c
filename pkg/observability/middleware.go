package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// Outcome labels used on request metrics
const (
	OutcomeOK = "ok"
)

// Instrumentation bundles the tracer and the metrics provider used around
// request dispatch and tool calls. The zero value records nothing.
type Instrumentation struct {
	Tracer  *TracingProvider
	Metrics MetricsProvider
}

// NewInstrumentation returns instrumentation backed by tracer and metrics; either may be nil
func NewInstrumentation(tracer *TracingProvider, metrics MetricsProvider) *Instrumentation {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Instrumentation{Tracer: tracer, Metrics: metrics}
}

func (in *Instrumentation) metrics() MetricsProvider {
	if in == nil || in.Metrics == nil {
		return NoopMetrics{}
	}
	return in.Metrics
}

func (in *Instrumentation) tracer() *TracingProvider {
	if in == nil {
		return nil
	}
	return in.Tracer
}

// ObserveRequest runs handle inside a request span and records its outcome
func (in *Instrumentation) ObserveRequest(ctx context.Context, method string, id protocol.ID, handle func(context.Context) *protocol.Response) *protocol.Response {
	ctx, span := in.tracer().StartRequestSpan(ctx, method, id.String())
	defer span.End()

	start := time.Now()
	resp := handle(ctx)
	duration := time.Since(start)

	outcome := OutcomeLabel(resp)
	in.metrics().RecordRequest(ctx, metricMethod(method), outcome, duration)

	if span.IsRecording() {
		span.SetAttributes(attribute.Float64("rpc.duration_ms", float64(duration.Microseconds())/1000))
		if resp != nil && resp.Error != nil {
			span.SetAttributes(
				attribute.Int("rpc.jsonrpc.error_code", int(resp.Error.Code)),
				attribute.String("rpc.jsonrpc.error_message", resp.Error.Message),
			)
			span.SetStatus(codes.Error, resp.Error.Message)
		}
	}

	return resp
}

// Recorder returns the metrics provider; never nil
func (in *Instrumentation) Recorder() MetricsProvider {
	return in.metrics()
}

// StartSession starts the span covering one stream session
func (in *Instrumentation) StartSession(ctx context.Context, sessionID, mode string) (context.Context, trace.Span) {
	return in.tracer().StartSessionSpan(ctx, sessionID, mode)
}

// ObserveToolCall runs invoke inside a child span and records the provider call
func (in *Instrumentation) ObserveToolCall(ctx context.Context, tool string, invoke func(context.Context) (string, error)) (string, error) {
	ctx, span := in.tracer().StartSpan(ctx, "mcp.tool."+tool,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("mcp.tool", tool)),
	)
	defer span.End()

	start := time.Now()
	out, err := invoke(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		RecordError(ctx, err)
	}
	in.metrics().RecordToolCall(ctx, tool, status, duration)

	return out, err
}

// OutcomeLabel classifies a response for metrics
func OutcomeLabel(resp *protocol.Response) string {
	if resp == nil || resp.Error == nil {
		return OutcomeOK
	}

	switch resp.Error.Code {
	case protocol.ParseError:
		return "parse_error"
	case protocol.InvalidRequest:
		return "invalid_request"
	case protocol.MethodNotFound:
		return "method_not_found"
	case protocol.InvalidParams:
		return "invalid_params"
	case protocol.InternalError:
		return "internal_error"
	default:
		return "unknown_error"
	}
}

// metricMethod keeps the method label bounded: unknown methods share one label
func metricMethod(method string) string {
	switch method {
	case protocol.MethodInitialize, protocol.MethodPing, protocol.MethodListTools, protocol.MethodCallTool:
		return method
	case "":
		return "none"
	default:
		return "other"
	}
}

// HTTPTracingMiddleware continues traces propagated through W3C trace context headers
func HTTPTracingMiddleware(tp *TracingProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tp == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tp.ExtractHTTP(r.Context(), r.Header)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
