package dto

import (
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
)

// ItemRequest is one line of an incoming order.
type ItemRequest struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Items      []ItemRequest `json:"items"`
	CustomerID string        `json:"customerId"`
}

// ToItems converts request lines into entity items.
func (r CreateOrderRequest) ToItems() []entity.Item {
	if r.Items == nil {
		return nil
	}
	items := make([]entity.Item, len(r.Items))
	for i, item := range r.Items {
		items[i] = entity.Item{Price: item.Price, Quantity: item.Quantity}
	}
	return items
}

// LinkOrderRequest is the body of POST /orders/:id/link.
type LinkOrderRequest struct {
	RelatedOrderID int64 `json:"relatedOrderId"`
}

// ListOrdersQuery carries the optional filters of GET /orders.
type ListOrdersQuery struct {
	CustomerID string `query:"customerId"`
	Status     string `query:"status"`
}

// Filter converts the query into a registry filter.
func (q ListOrdersQuery) Filter() repo.Filter {
	return repo.Filter{CustomerID: q.CustomerID, Status: q.Status}
}
