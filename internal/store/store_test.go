package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

func sampleOrders() []entity.Order {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	processed := created.Add(time.Hour)
	calculated := decimal.NewFromInt(35)
	related := int64(1)
	return []entity.Order{
		{
			ID:          1,
			Items:       []entity.Item{{Price: decimal.NewFromInt(10), Quantity: 2}, {Price: decimal.NewFromInt(5), Quantity: 3}},
			CustomerID:  "alice",
			TotalAmount: decimal.NewFromInt(15),
			Status:      entity.StatusPending,
			CreatedAt:   created,
		},
		{
			ID:              2,
			Items:           []entity.Item{{Price: decimal.RequireFromString("2.5"), Quantity: 4}},
			CustomerID:      "bob",
			TotalAmount:     decimal.RequireFromString("2.5"),
			CalculatedValue: &calculated,
			Status:          entity.StatusProcessed,
			Processed:       true,
			RelatedOrderID:  &related,
			CreatedAt:       created,
			ProcessedAt:     &processed,
		},
	}
}

func assertSameOrders(t *testing.T, want, got []entity.Order) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].CustomerID, got[i].CustomerID)
		assert.Equal(t, want[i].Status, got[i].Status)
		assert.Equal(t, want[i].Processed, got[i].Processed)
		assert.True(t, want[i].TotalAmount.Equal(got[i].TotalAmount), "total of order %d", want[i].ID)
		assert.WithinDuration(t, want[i].CreatedAt, got[i].CreatedAt, time.Millisecond)
		require.Len(t, got[i].Items, len(want[i].Items))
		for j := range want[i].Items {
			assert.True(t, want[i].Items[j].Price.Equal(got[i].Items[j].Price))
			assert.Equal(t, want[i].Items[j].Quantity, got[i].Items[j].Quantity)
		}
		if want[i].CalculatedValue == nil {
			assert.Nil(t, got[i].CalculatedValue)
		} else {
			require.NotNil(t, got[i].CalculatedValue)
			assert.True(t, want[i].CalculatedValue.Equal(*got[i].CalculatedValue))
		}
		assert.Equal(t, want[i].RelatedOrderID, got[i].RelatedOrderID)
		assert.Equal(t, want[i].ProcessedAt == nil, got[i].ProcessedAt == nil)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "orders.json")
	s := NewFileStore(path)

	orders, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.NoError(t, s.Save(ctx, sampleOrders()))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assertSameOrders(t, sampleOrders(), loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save(ctx, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "orders:test")

	orders, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.NoError(t, s.Save(ctx, sampleOrders()))
	assert.True(t, srv.Exists("orders:test"))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assertSameOrders(t, sampleOrders(), loaded)
}

func TestRedisStore_Unavailable(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	srv.Close()

	s := NewRedisStore(client, "orders:test")
	assert.Error(t, s.Save(context.Background(), sampleOrders()))
	_, err := s.Load(context.Background())
	assert.Error(t, err)
}

func TestDatabaseStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	conns, err := database.Open(config.Database{
		Driver:    "sqlite",
		WriterDSN: "file::memory:?cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	_, err = conns.Writer.NewCreateTable().Model((*entity.Order)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)

	s := NewDatabaseStore(conns)

	orders, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	require.NoError(t, s.Save(ctx, sampleOrders()))
	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assertSameOrders(t, sampleOrders(), loaded)

	// A second save replaces the table rather than appending.
	require.NoError(t, s.Save(ctx, sampleOrders()[:1]))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	assertSameOrders(t, sampleOrders()[:1], loaded)
}
