// Package observability records repository operation metrics through
// OpenTelemetry. The operation pipeline is the only writer; individual
// repository operations never record their own metrics.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type repoMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	registered *repoMetrics
)

// InitMetrics creates the repository instruments on the globally registered
// MeterProvider. Before it runs (or if it fails), RecordOperation is a no-op.
func InitMetrics() error {
	meter := otel.GetMeterProvider().Meter("identity-store")
	operations, err := meter.Int64Counter("repository.operations",
		metric.WithDescription("Repository operation outcomes"))
	if err != nil {
		return err
	}
	duration, err := meter.Float64Histogram("repository.operation.duration",
		metric.WithDescription("Repository operation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	metricsMu.Lock()
	registered = &repoMetrics{operations: operations, duration: duration}
	metricsMu.Unlock()
	return nil
}

// RecordOperation records one repository operation outcome and its latency.
func RecordOperation(ctx context.Context, op, outcome string, elapsed time.Duration) {
	metricsMu.RLock()
	m := registered
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
