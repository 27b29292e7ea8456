package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

func newHandler(t *testing.T) (messaging.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := config.Config{Messaging: config.Messaging{Kafka: config.Kafka{Topic: "orders.events"}}}

	reg := NewEventsHandler(zap.New(core), cfg)
	require.Equal(t, "orders.events", reg.Topic)
	return reg.Handler, logs
}

func TestEventsHandler_LogsByType(t *testing.T) {
	handler, logs := newHandler(t)
	ctx := context.Background()

	require.NoError(t, handler(ctx, messaging.Message{
		Topic: "orders.events",
		Value: []byte(`{"type":"order.created","id":3,"customerId":"alice","status":"pending","totalAmount":"15"}`),
	}))
	require.NoError(t, handler(ctx, messaging.Message{
		Topic:   "orders.events",
		Headers: map[string]string{messaging.HeaderEventType: "order.processed"},
		Value:   []byte(`{"id":3,"status":"processed"}`),
	}))

	assert.Equal(t, 1, logs.FilterMessage("order created event processed").Len())
	processed := logs.FilterMessage("order processed event processed").All()
	require.Len(t, processed, 1)
	assert.Equal(t, int64(3), processed[0].ContextMap()["id"])
}

func TestEventsHandler_UnknownTypeSkipped(t *testing.T) {
	handler, logs := newHandler(t)

	err := handler(context.Background(), messaging.Message{Value: []byte(`{"type":"order.archived","id":1}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("skipping unknown order event").Len())
}

func TestEventsHandler_BadPayloadFails(t *testing.T) {
	handler, _ := newHandler(t)
	assert.Error(t, handler(context.Background(), messaging.Message{Value: []byte("not json")}))
}
