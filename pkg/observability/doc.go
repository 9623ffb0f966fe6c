// Package observability provides Prometheus metrics and OpenTelemetry tracing for the server.
//
// Metrics are kept in a registry owned by the provider and served through Handler:
//
//	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{ServiceName: "inventory"})
//	mux.Handle("/metrics", metrics.Handler())
//
// Tracing exports through OTLP (gRPC or HTTP), a custom exporter, or nowhere:
//
//	tracer, err := observability.NewTracingProvider(observability.TracingConfig{
//		ExporterType: observability.ExporterTypeOTLPGRPC,
//		Endpoint:     "localhost:4317",
//		Insecure:     true,
//	})
//
// A nil *TracingProvider is valid and starts non-recording spans.
package observability
