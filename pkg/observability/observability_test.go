package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "navguard", config.ServiceName)
	assert.Equal(t, "localhost:4317", config.OTLPEndpoint)
	assert.Equal(t, 1.0, config.SampleRate)
	assert.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	// Recording against the global no-op providers must not panic.
	ctx, done := p.TrackOperation(context.Background(), "navigation.evaluate")
	p.RecordDecision(ctx, "allow", "default_allow", false)
	p.RecordSignalFailure(ctx, "integrations")
	done(errors.New("boom"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderWithNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "navguard", p.config.ServiceName)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string, match attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(match.Key); ok && v.Emit() == match.Value.Emit() {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewWithReader(reader)
	require.NoError(t, err)
	ctx := context.Background()

	p.RecordDecision(ctx, "redirect", "onboarding_hard_floor", false)
	p.RecordDecision(ctx, "redirect", "onboarding_hard_floor", true)
	p.RecordDecision(ctx, "allow", "default_allow", false)
	p.RecordSignalFailure(ctx, "subscription")

	_, done := p.TrackOperation(ctx, "navigation.evaluate")
	done(nil)
	_, done = p.TrackOperation(ctx, "navigation.evaluate")
	done(errors.New("failed"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "navguard.decisions.total", attribute.String("rule", "onboarding_hard_floor")))
	assert.Equal(t, int64(1), sumOf(t, rm, "navguard.decisions.total", attribute.String("verdict", "allow")))
	assert.Equal(t, int64(1), sumOf(t, rm, "navguard.signal.failures.total", attribute.String("signal", "subscription")))
	assert.Equal(t, int64(2), sumOf(t, rm, "navguard.requests.total", attribute.String("operation", "navigation.evaluate")))
	assert.Equal(t, int64(1), sumOf(t, rm, "navguard.errors.total", attribute.String("operation", "navigation.evaluate")))
	assert.Equal(t, int64(0), sumOf(t, rm, "navguard.operations.active", attribute.String("operation", "navigation.evaluate")))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
