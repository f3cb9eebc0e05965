// Package observability wires OpenTelemetry tracing and the webhook counters.
package observability

import (
	"context"
	"errors"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/vendeuonline/vendeu-payments/internal/core/domain"
)

const instrumentationName = "github.com/vendeuonline/vendeu-payments"

// Setup installs OTLP trace and metric providers. Without an endpoint the
// global no-op providers stay in place and shutdown does nothing.
func Setup(ctx context.Context, endpoint, serviceName, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		log.Println("OTEL_EXPORTER_OTLP_ENDPOINT not set - telemetry export disabled")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	log.Printf("Telemetry exporting to %s", endpoint)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// WebhookMetrics implements ports.StatusObserver on OpenTelemetry counters.
type WebhookMetrics struct {
	unknown   metric.Int64Counter
	applied   metric.Int64Counter
	discarded metric.Int64Counter
}

// NewWebhookMetrics registers the webhook counters on meter. A nil meter
// uses the global provider.
func NewWebhookMetrics(meter metric.Meter) (*WebhookMetrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	unknown, err := meter.Int64Counter("payments.webhook.unknown_status",
		metric.WithDescription("Webhook statuses missing from the mapping table"))
	if err != nil {
		return nil, err
	}
	applied, err := meter.Int64Counter("payments.webhook.applied",
		metric.WithDescription("Webhook statuses that advanced a charge"))
	if err != nil {
		return nil, err
	}
	discarded, err := meter.Int64Counter("payments.webhook.discarded",
		metric.WithDescription("Webhook statuses discarded as duplicate or regression"))
	if err != nil {
		return nil, err
	}
	return &WebhookMetrics{unknown: unknown, applied: applied, discarded: discarded}, nil
}

// UnknownStatus counts and logs an unmapped provider status. The charge is
// left untouched by the caller.
func (m *WebhookMetrics) UnknownStatus(ctx context.Context, provider domain.Provider, rawStatus, chargeID string) {
	log.Printf("WARNING: unknown %s payment status %q for charge %s - not applied", provider, rawStatus, chargeID)
	m.unknown.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("raw_status", rawStatus),
	))
}

func (m *WebhookMetrics) Outcome(ctx context.Context, provider domain.Provider, outcome domain.Transition, status domain.PaymentStatus) {
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("status", string(status)),
		attribute.String("outcome", outcome.String()),
	)
	if outcome == domain.TransitionAdvance {
		m.applied.Add(ctx, 1, attrs)
		return
	}
	m.discarded.Add(ctx, 1, attrs)
}
