package seeder

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/entity"
	repo "github.com/Additional-Code/orderdesk/internal/repository/order"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder loads sample orders for local setups through the order service, so
// it works against every store backend.
type Seeder struct {
	svc    *ordersvc.Service
	logger *zap.Logger
}

// New constructs a Seeder.
func New(svc *ordersvc.Service, logger *zap.Logger) *Seeder {
	return &Seeder{svc: svc, logger: logger}
}

type sample struct {
	customerID string
	items      []entity.Item
}

var samples = []sample{
	{customerID: "customer-1", items: []entity.Item{
		{Price: decimal.NewFromInt(10), Quantity: 2},
		{Price: decimal.NewFromInt(5), Quantity: 3},
	}},
	{customerID: "customer-2", items: []entity.Item{
		{Price: decimal.RequireFromString("19.99"), Quantity: 1},
	}},
	{customerID: "customer-1", items: []entity.Item{
		{Price: decimal.RequireFromString("2.50"), Quantity: 4},
		{Price: decimal.NewFromInt(100), Quantity: 1},
	}},
}

// Orders creates the sample orders unless the collection already holds data.
// It returns how many orders were created.
func (s *Seeder) Orders(ctx context.Context) (int, error) {
	if existing := s.svc.ListOrders(ctx, repo.Filter{}); len(existing) > 0 {
		s.logger.Info("orders already present; skipping seed", zap.Int("count", len(existing)))
		return 0, nil
	}

	for i, sample := range samples {
		if _, err := s.svc.CreateOrder(ctx, sample.items, sample.customerID); err != nil {
			return i, err
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(samples)))
	return len(samples), nil
}
