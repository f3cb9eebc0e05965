package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func TestWebhookMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewWebhookMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.UnknownStatus(ctx, domain.ProviderAsaas, "SOMETHING_NEW", "pay_1")
	m.UnknownStatus(ctx, domain.ProviderAsaas, "SOMETHING_NEW", "pay_2")
	m.Outcome(ctx, domain.ProviderAsaas, domain.TransitionAdvance, domain.StatusPaid)
	m.Outcome(ctx, domain.ProviderAsaas, domain.TransitionRegression, domain.StatusPending)
	m.Outcome(ctx, domain.ProviderAsaas, domain.TransitionDuplicate, domain.StatusPaid)

	sums := collect(t, reader)

	unknown := sums["payments.webhook.unknown_status"]
	require.Len(t, unknown.DataPoints, 1)
	assert.Equal(t, int64(2), unknown.DataPoints[0].Value)
	raw, ok := unknown.DataPoints[0].Attributes.Value(attribute.Key("raw_status"))
	require.True(t, ok)
	assert.Equal(t, "SOMETHING_NEW", raw.AsString())

	applied := sums["payments.webhook.applied"]
	require.Len(t, applied.DataPoints, 1)
	assert.Equal(t, int64(1), applied.DataPoints[0].Value)

	discarded := sums["payments.webhook.discarded"]
	var total int64
	for _, dp := range discarded.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "svc", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
