package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/platinummonkey/unwind"

// OTelMetrics mirrors the analytics metrics on OpenTelemetry instruments so
// they can be exported over OTLP alongside traces
type OTelMetrics struct {
	computations        metric.Int64Counter
	computationDuration metric.Float64Histogram
	cacheLookups        metric.Int64Counter
	usageWrites         metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(instrumentationName))
}

// NewOTelMetricsWithMeter creates instruments on the given meter
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.computations, err = meter.Int64Counter(
		"unwind.risk.computations",
		metric.WithDescription("Dashboards computed, by resulting risk level"),
		metric.WithUnit("{computation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create risk computations counter: %w", err)
	}

	m.computationDuration, err = meter.Float64Histogram(
		"unwind.risk.computation.duration",
		metric.WithDescription("Time to load usage and compute a dashboard"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create computation duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"unwind.dashboard.cache.lookups",
		metric.WithDescription("Dashboard cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.usageWrites, err = meter.Int64Counter(
		"unwind.usage.writes",
		metric.WithDescription("Usage entry writes by operation"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage writes counter: %w", err)
	}

	return m, nil
}

// RecordComputation records one dashboard computation
func (m *OTelMetrics) RecordComputation(ctx context.Context, level string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("risk.level", level))
	m.computations.Add(ctx, 1, attrs)
	m.computationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a dashboard cache hit or miss
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cache.hit", hit)))
}

// RecordUsageWrite records a create, update or delete of a usage entry
func (m *OTelMetrics) RecordUsageWrite(ctx context.Context, operation string) {
	m.usageWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
