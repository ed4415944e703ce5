package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/randalmurphal/agentgraph"

// Span and metric names.
const (
	SpanRun        = "agentgraph.run"
	SpanNodePrefix = "agentgraph.node."

	MetricExecutions = "agentgraph.node.executions"
	MetricFailures   = "agentgraph.node.failures"
	MetricRetries    = "agentgraph.node.retries"
	MetricLatency    = "agentgraph.node.latency_ms"
)

// Attribute keys.
const (
	AttrExecutionID = attribute.Key("agentgraph.execution_id")
	AttrGraph       = attribute.Key("agentgraph.graph")
	AttrNodeID      = attribute.Key("agentgraph.node_id")
	AttrNodeKind    = attribute.Key("agentgraph.node_kind")
	AttrAttempt     = attribute.Key("agentgraph.attempt")
	AttrStatus      = attribute.Key("agentgraph.status")
)

// Telemetry bundles the tracer and instruments the executor reports to.
// The zero value is not usable; use NewTelemetry or Noop.
type Telemetry struct {
	tracer     trace.Tracer
	executions metric.Int64Counter
	failures   metric.Int64Counter
	retries    metric.Int64Counter
	latency    metric.Float64Histogram
}

// TelemetryOption configures NewTelemetry.
type TelemetryOption func(*telemetryConfig)

type telemetryConfig struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

// WithTracerProvider enables tracing through tp.
func WithTracerProvider(tp trace.TracerProvider) TelemetryOption {
	return func(c *telemetryConfig) { c.tp = tp }
}

// WithMeterProvider enables metrics through mp.
func WithMeterProvider(mp metric.MeterProvider) TelemetryOption {
	return func(c *telemetryConfig) { c.mp = mp }
}

// NewTelemetry creates instruments. Providers not supplied are noop.
func NewTelemetry(opts ...TelemetryOption) (*Telemetry, error) {
	cfg := telemetryConfig{
		tp: tracenoop.NewTracerProvider(),
		mp: metricnoop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.mp.Meter(instrumentationName)
	t := &Telemetry{tracer: cfg.tp.Tracer(instrumentationName)}

	var err error
	if t.executions, err = meter.Int64Counter(MetricExecutions,
		metric.WithDescription("Node executions, including retries")); err != nil {
		return nil, err
	}
	if t.failures, err = meter.Int64Counter(MetricFailures,
		metric.WithDescription("Node attempts that returned an error")); err != nil {
		return nil, err
	}
	if t.retries, err = meter.Int64Counter(MetricRetries,
		metric.WithDescription("Node retries scheduled after a failure")); err != nil {
		return nil, err
	}
	if t.latency, err = meter.Float64Histogram(MetricLatency,
		metric.WithDescription("Node attempt latency"), metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return t, nil
}

// Noop returns telemetry that records nothing.
func Noop() *Telemetry {
	t, _ := NewTelemetry()
	return t
}

// StartRun opens the run span.
func (t *Telemetry) StartRun(ctx context.Context, graph, executionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRun, trace.WithAttributes(
		AttrGraph.String(graph),
		AttrExecutionID.String(executionID),
	))
}

// StartNode opens a span for one node attempt.
func (t *Telemetry) StartNode(ctx context.Context, nodeID, kind string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanNodePrefix+nodeID, trace.WithAttributes(
		AttrNodeID.String(nodeID),
		AttrNodeKind.String(kind),
		AttrAttempt.Int(attempt),
	))
}

// RecordNode records one attempt's outcome on the instruments.
func (t *Telemetry) RecordNode(ctx context.Context, nodeID string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(AttrNodeID.String(nodeID))
	t.executions.Add(ctx, 1, attrs)
	t.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if err != nil {
		t.failures.Add(ctx, 1, attrs)
	}
}

// RecordRetry counts a scheduled retry.
func (t *Telemetry) RecordRetry(ctx context.Context, nodeID string) {
	t.retries.Add(ctx, 1, metric.WithAttributes(AttrNodeID.String(nodeID)))
}

// EndSpan closes span, marking it failed when err is non-nil.
func EndSpan(span trace.Span, status string, err error) {
	if status != "" {
		span.SetAttributes(AttrStatus.String(status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
