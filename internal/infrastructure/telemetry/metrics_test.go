package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// newTestMeter returns a meter backed by a manual reader
func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader, mp
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// sumOf adds up the data points of an int64 sum, optionally filtered by one attribute
func sumOf(rm metricdata.ResourceMetrics, name string, filter ...attribute.KeyValue) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if len(filter) > 0 {
					v, ok := dp.Attributes.Value(filter[0].Key)
					if !ok || v != filter[0].Value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

// histogramCount returns the number of observations of a float64 histogram
func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == name {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	return count
}

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := Setup(ctx, Config{Enabled: false, ServiceName: "test-service"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Shutdown(ctx))

	var nilProviders *Providers
	assert.False(t, nilProviders.Enabled())
	assert.NoError(t, nilProviders.Shutdown(ctx))
}

func TestServiceResource(t *testing.T) {
	res, err := serviceResource(Config{ServiceName: "xtravels"})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "xtravels", attrs["service.name"])
	assert.Equal(t, "dev", attrs["service.version"])
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOn")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOff")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestInstruments(t *testing.T) {
	reader, mp := newTestMeter(t)
	meter := mp.Meter("test")
	ctx := context.Background()

	counter, err := NewCounter(meter, "test_counter", "Test counter", "1")
	require.NoError(t, err)
	counter.Add(ctx, 5, AttrEntity.String("Flights"))
	counter.Inc(ctx, AttrEntity.String("Supplements"))

	histogram, err := NewHistogram(meter, HistogramOpts{Name: "test_seconds", Unit: "s", Boundaries: DBDurationBuckets})
	require.NoError(t, err)
	histogram.RecordDuration(ctx, 20*time.Millisecond)

	gauge, err := NewGauge(meter, "test_gauge", "Test gauge", "1")
	require.NoError(t, err)
	gauge.Record(ctx, 3)

	rm := collect(t, reader)
	assert.Equal(t, int64(6), sumOf(rm, "test_counter"))
	assert.Equal(t, int64(5), sumOf(rm, "test_counter", AttrEntity.String("Flights")))
	assert.Equal(t, uint64(1), histogramCount(rm, "test_seconds"))
}

func TestFederationMetrics(t *testing.T) {
	t.Run("nil meter", func(t *testing.T) {
		m, err := NewFederationMetrics(nil)
		assert.Nil(t, m)
		assert.Equal(t, "NewFederationMetrics: meter cannot be nil", err.Error())
	})

	t.Run("nil metrics record nothing", func(t *testing.T) {
		var m *FederationMetrics
		assert.NotPanics(t, func() {
			m.RecordReplicated(context.Background(), "Flights", 1)
			m.RecordRemoteCall(context.Background(), "Flights", time.Second, nil)
			m.RecordFallback(context.Background(), "Flights")
			m.RecordAllocation(context.Background(), "Travels.travel_number", 1, 0)
			m.RecordConflictRetry(context.Background(), "Travels")
			m.RecordRecompute(context.Background())
		})
	})

	t.Run("records", func(t *testing.T) {
		reader, mp := newTestMeter(t)
		m, err := NewFederationMetrics(mp.Meter("test"))
		require.NoError(t, err)
		ctx := context.Background()

		m.RecordReplicated(ctx, "Flights", 2)
		m.RecordReplicated(ctx, "Supplements", 0)
		m.RecordRemoteCall(ctx, "Flights", 10*time.Millisecond, nil)
		m.RecordRemoteCall(ctx, "Flights", time.Second, errors.New("timeout"))
		m.RecordFallback(ctx, "Flights")
		m.RecordAllocation(ctx, "Bookings.pos", 3, time.Millisecond)
		m.RecordConflictRetry(ctx, "Travels")
		m.RecordRecompute(ctx)

		rm := collect(t, reader)
		assert.Equal(t, int64(2), sumOf(rm, "federation_replicated_rows_total"))
		assert.Equal(t, int64(1), sumOf(rm, "federation_remote_failures_total", AttrEntity.String("Flights")))
		assert.Equal(t, uint64(2), histogramCount(rm, "federation_remote_duration_seconds"))
		assert.Equal(t, int64(1), sumOf(rm, "federation_fallback_reads_total"))
		assert.Equal(t, int64(3), sumOf(rm, "sequence_allocations_total", AttrScope.String("Bookings.pos")))
		assert.Equal(t, uint64(1), histogramCount(rm, "sequence_lock_wait_seconds"))
		assert.Equal(t, int64(1), sumOf(rm, "sequence_conflict_retries_total"))
		assert.Equal(t, int64(1), sumOf(rm, "pricing_recomputations_total"))
	})
}
