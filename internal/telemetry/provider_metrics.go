package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProviderMetrics counts routing provider calls and routing cache lookups.
// It satisfies routing.Recorder.
//
// Calls are recorded after the request context may have been cancelled, so
// all recordings use context.Background.
type ProviderMetrics struct {
	calls   metric.Int64Counter
	latency metric.Float64Histogram
	lookups metric.Int64Counter
}

func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	var (
		m   ProviderMetrics
		err error
	)
	if m.latency, err = meter.Float64Histogram("provider.request.duration",
		metric.WithDescription("Routing provider call latency, retries included"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("provider latency histogram: %w", err)
	}
	if m.calls, err = meter.Int64Counter("provider.request.total",
		metric.WithDescription("Routing provider calls by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("provider call counter: %w", err)
	}
	if m.lookups, err = meter.Int64Counter("provider.cache.lookups",
		metric.WithDescription("Routing cache lookups by result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, fmt.Errorf("cache lookup counter: %w", err)
	}
	return &m, nil
}

// RecordRequest records one provider call and whether it failed.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	set := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
		attribute.Bool("error", err != nil),
	))
	m.latency.Record(context.Background(), duration.Seconds(), set)
	m.calls.Add(context.Background(), 1, set)
}

func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.lookup(provider, operation, "hit")
}

func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.lookup(provider, operation, "miss")
}

func (m *ProviderMetrics) lookup(provider, operation, result string) {
	m.lookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
		attribute.String("cache.result", result),
	))
}
