package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	p, err := New(context.Background(), Config{Exporter: "none"}, WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p, reader
}

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	s, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", agg)
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNoopRecordsNothing(t *testing.T) {
	p := Noop()
	ctx, done := p.TrackOperation(context.Background(), "settlement.accept", nil)
	done(errors.New("boom"))
	p.RecordTransition(ctx, "accepted", "escrow.pending")
	p.RecordRun(ctx, ir.MatchingRun{Shadow: &ir.ShadowDiagnostic{Agreement: true}})
	assert.NoError(t, p.Shutdown(ctx))
}

func TestNewNoneWithoutOverridesIsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, p.tracerProvider)
}

func TestNewRejectsUnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Exporter: "carrier-pigeon"})
	require.Error(t, err)
}

func TestTrackOperationCountsErrorsByKind(t *testing.T) {
	p, reader := newTestProvider(t)
	ctx := context.Background()

	_, done := p.TrackOperation(ctx, "settlement.accept", nil)
	done(nil)
	_, done = p.TrackOperation(ctx, "settlement.accept", func(error) string { return "conflict" })
	done(errors.New("taken"))

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["swapgraph.operations.total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["swapgraph.errors.total"]))
	assert.Contains(t, metrics, "swapgraph.operation.duration")
}

func TestRecordRunAndTransitions(t *testing.T) {
	p, reader := newTestProvider(t)
	ctx := context.Background()

	p.RecordTransition(ctx, "escrow.pending", "escrow.executing")
	p.RecordRun(ctx, ir.MatchingRun{
		Stats:     ir.RunStats{CandidateCycles: 3},
		Selection: ir.SelectionSummary{Method: "exact"},
		Shadow:    &ir.ShadowDiagnostic{Agreement: false, Delta: 25},
	})

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, metrics["swapgraph.settlement.transitions"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["swapgraph.matching.runs"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["swapgraph.matching.shadow_comparisons"]))

	hist, ok := metrics["swapgraph.matching.shadow_delta"].(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, int64(25), hist.DataPoints[0].Sum)
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), Config{Exporter: "stdout"}, WithWriter(&buf))
	require.NoError(t, err)

	_, span := p.StartSpan(context.Background(), "matching.run")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "matching.run")
}
