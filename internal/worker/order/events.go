package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orderdesk/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEventsHandler consumes the order topic and logs each event by type.
func NewEventsHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders.handle", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ordersvc.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err), zap.Int64("offset", msg.Offset))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return fmt.Errorf("decode order event: %w", err)
		}

		eventType := event.Type
		if eventType == "" {
			eventType = msg.Headers[messaging.HeaderEventType]
		}
		span.SetAttributes(attribute.String("order.event", eventType), attribute.Int64("order.id", event.ID))

		fields := []zap.Field{
			zap.Int64("id", event.ID),
			zap.String("customer_id", event.CustomerID),
			zap.String("status", event.Status),
			zap.Time("occurred_at", event.OccurredAt),
		}
		switch eventType {
		case ordersvc.EventOrderCreated:
			logger.Info("order created event processed", append(fields, zap.String("total", event.TotalAmount.String()))...)
		case ordersvc.EventOrderProcessed:
			logger.Info("order processed event processed", append(fields, zap.Bool("processed", event.Processed))...)
		default:
			logger.Debug("skipping unknown order event", zap.String("type", eventType))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
