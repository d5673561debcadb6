package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ProfileMetrics records profile builds.
type ProfileMetrics struct {
	built    metric.Int64Counter
	failed   metric.Int64Counter
	duration metric.Float64Histogram
	rows     metric.Int64Histogram
}

// NewProfileMetrics creates the profile instruments on meter.
func NewProfileMetrics(meter metric.Meter) (*ProfileMetrics, error) {
	built, err := meter.Int64Counter(
		"profile.built.total",
		metric.WithDescription("Number of route profiles built"),
		metric.WithUnit("{profile}"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter(
		"profile.failed.total",
		metric.WithDescription("Number of route profile builds that failed"),
		metric.WithUnit("{profile}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"profile.build.duration",
		metric.WithDescription("Duration of route profile builds including provider calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := meter.Int64Histogram(
		"profile.rows",
		metric.WithDescription("Number of rows per built route profile"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProfileMetrics{
		built:    built,
		failed:   failed,
		duration: duration,
		rows:     rows,
	}, nil
}

// RecordBuilt records a successful build of kind with rowCount rows.
func (m *ProfileMetrics) RecordBuilt(ctx context.Context, kind string, fullResolution bool, rowCount int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("profile.kind", kind),
		attribute.Bool("profile.full_resolution", fullResolution),
	)
	m.built.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.rows.Record(ctx, int64(rowCount), attrs)
}

// RecordFailure records a failed build of kind.
func (m *ProfileMetrics) RecordFailure(ctx context.Context, kind, reason string) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile.kind", kind),
		attribute.String("error.type", reason),
	))
}
