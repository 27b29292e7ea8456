package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// DatabaseStore mirrors the collection into the orders table.
type DatabaseStore struct {
	writer *bun.DB
	reader *bun.DB
}

// NewDatabaseStore wires a store backed by configured database connections.
func NewDatabaseStore(conns *database.Connections) *DatabaseStore {
	return &DatabaseStore{writer: conns.Writer, reader: conns.Reader}
}

// Name identifies the backend in logs.
func (s *DatabaseStore) Name() string { return "database" }

// Load selects every order ordered by id.
func (s *DatabaseStore) Load(ctx context.Context) ([]entity.Order, error) {
	ctx, span := storeTracer.Start(ctx, "DatabaseStore.Load")
	defer span.End()

	orders := make([]entity.Order, 0)
	if err := s.reader.NewSelect().Model(&orders).Order("id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, fmt.Errorf("select orders: %w", err)
	}
	span.SetAttributes(attribute.Int("store.orders", len(orders)))
	return orders, nil
}

// Save replaces the table contents inside one transaction.
func (s *DatabaseStore) Save(ctx context.Context, orders []entity.Order) error {
	ctx, span := storeTracer.Start(ctx, "DatabaseStore.Save", trace.WithAttributes(attribute.Int("store.orders", len(orders))))
	defer span.End()

	err := s.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*entity.Order)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
		if len(orders) == 0 {
			return nil
		}
		rows := make([]entity.Order, len(orders))
		copy(rows, orders)
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert orders: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
	}
	return err
}
