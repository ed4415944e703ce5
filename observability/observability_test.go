package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Level: "warn", Format: "json", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "node_id", "a")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"node_id":"a"`)
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Options{Writer: &buf}).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestTelemetry_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	tel, err := NewTelemetry(WithTracerProvider(tp))
	require.NoError(t, err)

	ctx, run := tel.StartRun(context.Background(), "review", "exec-1")
	_, node := tel.StartNode(ctx, "plan", "agent", 1)
	EndSpan(node, "", errors.New("boom"))
	EndSpan(run, "failed", nil)

	ended := sr.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "agentgraph.node.plan", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, SpanRun, ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
}

func TestTelemetry_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel, err := NewTelemetry(WithMeterProvider(mp))
	require.NoError(t, err)

	ctx := context.Background()
	tel.RecordNode(ctx, "a", 5*time.Millisecond, errors.New("x"))
	tel.RecordRetry(ctx, "a")
	tel.RecordNode(ctx, "a", 3*time.Millisecond, nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	var histCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums[MetricExecutions])
	assert.Equal(t, int64(1), sums[MetricFailures])
	assert.Equal(t, int64(1), sums[MetricRetries])
	assert.Equal(t, uint64(2), histCount)
}

func TestNoop(t *testing.T) {
	tel := Noop()
	ctx, span := tel.StartRun(context.Background(), "g", "e")
	tel.RecordNode(ctx, "n", time.Millisecond, nil)
	EndSpan(span, "completed", nil)
}
