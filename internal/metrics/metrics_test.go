package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &data))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordsCounters(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewWithProvider(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.EventProcessed(ctx, "changed", "ok", 20*time.Millisecond)
	m.EventProcessed(ctx, "removed", "ok", time.Millisecond)
	m.ParseFailed(ctx)
	m.Promoted(ctx, 3)
	m.Promoted(ctx, 0)
	m.ArtifactsWritten(ctx, 2)
	m.QueryServed(ctx, "http")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got[EventsTotalName]))
	assert.Equal(t, int64(1), sumOf(t, got[ParseFailuresName]))
	assert.Equal(t, int64(3), sumOf(t, got[PromotionsName]))
	assert.Equal(t, int64(2), sumOf(t, got[ArtifactsName]))
	assert.Equal(t, int64(1), sumOf(t, got[QueriesTotalName]))

	hist, ok := got[EventDurationName].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventProcessed(context.Background(), "added", "ok", time.Second)
		m.ParseFailed(context.Background())
		m.Promoted(context.Background(), 1)
		m.ArtifactsWritten(context.Background(), 1)
		m.QueryServed(context.Background(), "mcp")
	})
}

func TestNew_GlobalProvider(t *testing.T) {
	t.Parallel()
	m, err := New()
	require.NoError(t, err)
	require.NotNil(t, m)
}
