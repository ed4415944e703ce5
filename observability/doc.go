// Package observability builds loggers and OpenTelemetry instruments for
// graph executions.
//
// Logging uses log/slog:
//
//	logger := observability.NewLogger(observability.Options{Level: "debug", Format: "json"})
//
// Tracing and metrics are off unless providers are supplied:
//
//	tel, err := observability.NewTelemetry(
//	    observability.WithTracerProvider(tp),
//	    observability.WithMeterProvider(mp),
//	)
//
// Runs produce an agentgraph.run span with one agentgraph.node.<id> child per
// node attempt. Metrics: agentgraph.node.executions, agentgraph.node.failures,
// agentgraph.node.retries and agentgraph.node.latency_ms.
package observability
