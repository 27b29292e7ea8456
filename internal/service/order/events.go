package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// Event types published on the order topic.
const (
	EventOrderCreated   = "order.created"
	EventOrderProcessed = "order.processed"
)

// OrderEvent is the payload of every order notification.
type OrderEvent struct {
	Type        string          `json:"type"`
	ID          int64           `json:"id"`
	CustomerID  string          `json:"customerId"`
	Status      string          `json:"status"`
	Processed   bool            `json:"processed"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func newOrderEvent(eventType string, order entity.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        eventType,
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		Processed:   order.Processed,
		TotalAmount: order.TotalAmount,
		OccurredAt:  at,
	}
}

// MessageKey partitions events of one order together.
func MessageKey(id int64) []byte {
	return []byte(fmt.Sprintf("order-%d", id))
}

func (e OrderEvent) message() (messaging.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return messaging.Message{}, err
	}
	return messaging.Message{
		Key:     MessageKey(e.ID),
		Value:   payload,
		Headers: map[string]string{messaging.HeaderEventType: e.Type},
	}, nil
}
