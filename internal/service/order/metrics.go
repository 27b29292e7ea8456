package order

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "github.com/Additional-Code/orderdesk/service/order"

type metrics struct {
	created   metric.Int64Counter
	processed metric.Int64Counter
	conflicts metric.Int64Counter
	bulkRuns  metric.Int64Counter
}

// newMetrics registers instruments on the global meter provider. Instruments
// that fail to register fall back to no-ops.
func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter(meterName)
	fallback := noop.Meter{}

	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.Warn("register metric failed", zap.String("metric", name), zap.Error(err))
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		created:   counter("orders.created", "Orders created"),
		processed: counter("orders.processed", "ProcessOrder calls that succeeded"),
		conflicts: counter("orders.guard.conflicts", "Processing requests rejected by the guard"),
		bulkRuns:  counter("orders.bulk.runs", "Completed bulk processing runs"),
	}
}

func metricScope(scope string) metric.AddOption {
	return metric.WithAttributes(attribute.String("scope", scope))
}
