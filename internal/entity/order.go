package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Order statuses understood by the service. Status stays an open string so
// patches may introduce new values.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
)

// PriceScale is the number of decimal places money columns keep. Prices with
// more places are rejected so every store backend round-trips them exactly.
const PriceScale = 4

var (
	ErrItemsRequired    = errors.New("order must contain at least one item")
	ErrCustomerRequired = errors.New("customerId is required")
	ErrNegativePrice    = errors.New("item price must be non-negative")
	ErrNegativeQuantity = errors.New("item quantity must be non-negative")
	ErrPriceScale       = errors.New("item price must have at most 4 decimal places")
)

// Item is a single order line.
type Item struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Order represents a customer purchase record.
type Order struct {
	bun.BaseModel `bun:"table:orders" json:"-"`

	ID              int64            `bun:"id,pk" json:"id"`
	Items           []Item           `bun:"items" json:"items"`
	CustomerID      string           `bun:"customer_id,notnull" json:"customerId"`
	TotalAmount     decimal.Decimal  `bun:"total_amount,type:numeric(20,4),notnull" json:"totalAmount"`
	CalculatedValue *decimal.Decimal `bun:"calculated_value,type:numeric(20,4)" json:"calculatedValue,omitempty"`
	Status          string           `bun:"status,notnull" json:"status"`
	Processed       bool             `bun:"processed,notnull" json:"processed"`
	RelatedOrderID  *int64           `bun:"related_order_id" json:"relatedOrderId,omitempty"`
	CreatedAt       time.Time        `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       *time.Time       `bun:"updated_at" json:"updatedAt,omitempty"`
	ProcessedAt     *time.Time       `bun:"processed_at" json:"processedAt,omitempty"`
}

// ValidateItems checks the line items of a new or patched order.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrItemsRequired
	}
	for _, item := range items {
		if item.Price.IsNegative() {
			return ErrNegativePrice
		}
		if !item.Price.Equal(item.Price.Truncate(PriceScale)) {
			return ErrPriceScale
		}
		if item.Quantity < 0 {
			return ErrNegativeQuantity
		}
	}
	return nil
}

// SumPrices adds up item prices without weighting by quantity.
func SumPrices(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price)
	}
	return total
}

// LineTotal returns the sum of price × quantity over all items.
func LineTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Clone returns a deep copy that shares no memory with o.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]Item, len(o.Items))
		copy(out.Items, o.Items)
	}
	if o.CalculatedValue != nil {
		v := *o.CalculatedValue
		out.CalculatedValue = &v
	}
	if o.RelatedOrderID != nil {
		v := *o.RelatedOrderID
		out.RelatedOrderID = &v
	}
	if o.UpdatedAt != nil {
		v := *o.UpdatedAt
		out.UpdatedAt = &v
	}
	if o.ProcessedAt != nil {
		v := *o.ProcessedAt
		out.ProcessedAt = &v
	}
	return out
}

// MarkProcessed moves the order into the processed status.
func (o *Order) MarkProcessed(now time.Time) {
	o.Status = StatusProcessed
	o.ProcessedAt = &now
}
