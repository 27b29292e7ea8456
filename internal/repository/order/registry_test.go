package order

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	return NewRegistry(WithClock(func() time.Time { return fixedNow }))
}

func sampleItems() []entity.Item {
	return []entity.Item{
		{Price: decimal.NewFromInt(10), Quantity: 2},
		{Price: decimal.NewFromInt(5), Quantity: 3},
	}
}

func TestRegistry_Create(t *testing.T) {
	r := newTestRegistry()

	order, err := r.Create(sampleItems(), "cust-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, entity.StatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, fixedNow, order.CreatedAt)
	assert.Nil(t, order.CalculatedValue)
	assert.Nil(t, order.UpdatedAt)
}

func TestRegistry_CreateRejectsInvalidInput(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Create(nil, "cust-1")
	assert.ErrorIs(t, err, entity.ErrItemsRequired)

	_, err = r.Create([]entity.Item{{Price: decimal.NewFromInt(-1), Quantity: 1}}, "cust-1")
	assert.ErrorIs(t, err, entity.ErrNegativePrice)

	_, err = r.Create([]entity.Item{{Price: decimal.NewFromInt(1), Quantity: -1}}, "cust-1")
	assert.ErrorIs(t, err, entity.ErrNegativeQuantity)

	_, err = r.Create(sampleItems(), "")
	assert.ErrorIs(t, err, entity.ErrCustomerRequired)

	assert.Zero(t, r.Len())
	assert.Zero(t, r.LastID())
}

func TestRegistry_IDsSeededFromLoad(t *testing.T) {
	r := newTestRegistry()
	r.Load([]entity.Order{{ID: 3, CustomerID: "a"}, {ID: 9, CustomerID: "b"}, {ID: 4, CustomerID: "c"}})

	order, err := r.Create(sampleItems(), "d")
	require.NoError(t, err)
	assert.Equal(t, int64(10), order.ID)

	// A reload with fewer records must not rewind the sequence.
	r.Load([]entity.Order{{ID: 1, CustomerID: "a"}})
	order, err = r.Create(sampleItems(), "d")
	require.NoError(t, err)
	assert.Equal(t, int64(11), order.ID)
}

func TestRegistry_ConcurrentCreateUniqueIDs(t *testing.T) {
	r := newTestRegistry()
	r.Load([]entity.Order{{ID: 100, CustomerID: "seed"}})

	const workers = 64
	ids := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := r.Create(sampleItems(), "c")
			if err == nil {
				ids <- order.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]struct{}, workers)
	for id := range ids {
		assert.Greater(t, id, int64(100))
		assert.LessOrEqual(t, id, int64(100+workers))
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := newTestRegistry()
	created, err := r.Create(sampleItems(), "c")
	require.NoError(t, err)

	got, ok := r.Get(created.ID)
	require.True(t, ok)
	got.Items[0].Quantity = 1000
	got.Status = "tampered"

	again, _ := r.Get(created.ID)
	assert.Equal(t, 2, again.Items[0].Quantity)
	assert.Equal(t, entity.StatusPending, again.Status)

	_, ok = r.Get(999)
	assert.False(t, ok)
}

func TestRegistry_List(t *testing.T) {
	r := newTestRegistry()
	for _, c := range []string{"alice", "bob", "alice"} {
		_, err := r.Create(sampleItems(), c)
		require.NoError(t, err)
	}
	processed := entity.StatusProcessed
	_, err := r.Update(3, entity.Patch{Status: &processed})
	require.NoError(t, err)

	all := r.List(Filter{})
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})

	alice := r.List(Filter{CustomerID: "alice"})
	assert.Len(t, alice, 2)

	both := r.List(Filter{CustomerID: "alice", Status: entity.StatusProcessed})
	require.Len(t, both, 1)
	assert.Equal(t, int64(3), both[0].ID)

	assert.Empty(t, r.List(Filter{CustomerID: "carol"}))
}

func TestRegistry_UpdatePartial(t *testing.T) {
	r := newTestRegistry()
	created, err := r.Create(sampleItems(), "c")
	require.NoError(t, err)

	status := entity.StatusProcessed
	updated, err := r.Update(created.ID, entity.Patch{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, entity.StatusProcessed, updated.Status)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, created.Items, updated.Items)
	assert.Equal(t, created.CustomerID, updated.CustomerID)
	assert.True(t, created.TotalAmount.Equal(updated.TotalAmount))
	assert.Nil(t, updated.ProcessedAt)

	_, err = r.Update(42, entity.Patch{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Update(created.ID, entity.Patch{})
	assert.ErrorIs(t, err, entity.ErrEmptyPatch)
}

func TestRegistry_MutateRollsBackOnError(t *testing.T) {
	r := newTestRegistry()
	created, err := r.Create(sampleItems(), "c")
	require.NoError(t, err)

	_, err = r.Mutate(created.ID, func(o *entity.Order, _ time.Time) error {
		o.Status = "half-done"
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, _ := r.Get(created.ID)
	assert.Equal(t, entity.StatusPending, got.Status)
}

func TestRegistry_Link(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 3; i++ {
		_, err := r.Create(sampleItems(), "c")
		require.NoError(t, err)
	}

	_, err := r.Link(1, 1)
	assert.ErrorIs(t, err, ErrSelfLink)

	_, err = r.Link(1, 77)
	assert.ErrorIs(t, err, ErrNotFound)

	linked, err := r.Link(1, 2)
	require.NoError(t, err)
	require.NotNil(t, linked.RelatedOrderID)
	assert.Equal(t, int64(2), *linked.RelatedOrderID)

	_, err = r.Link(2, 3)
	require.NoError(t, err)

	// 3 -> 1 would close 1 -> 2 -> 3 -> 1.
	_, err = r.Link(3, 1)
	assert.ErrorIs(t, err, ErrLinkCycle)

	_, err = r.Link(2, 1)
	assert.ErrorIs(t, err, ErrLinkCycle)
}

func TestRegistry_MergeAndMarkProcessed(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(sampleItems(), "memory-only")
	require.NoError(t, err)
	_, version := r.SnapshotForSave()
	r.MarkSaved(version)

	persisted := []entity.Order{
		{ID: 1, CustomerID: "from-store", Status: entity.StatusPending},
		{ID: 5, CustomerID: "external", Status: entity.StatusPending},
	}
	count, kept := r.MergeAndMarkProcessed(persisted, fixedNow)
	assert.Equal(t, 2, count)
	assert.Empty(t, kept)

	one, _ := r.Get(1)
	assert.Equal(t, "from-store", one.CustomerID)
	assert.True(t, one.Processed)
	require.NotNil(t, one.ProcessedAt)
	assert.Equal(t, fixedNow, *one.ProcessedAt)
	assert.Equal(t, entity.StatusPending, one.Status)

	five, ok := r.Get(5)
	require.True(t, ok)
	assert.True(t, five.Processed)
	assert.Equal(t, int64(5), r.LastID())
}

func TestRegistry_MergeKeepsUnsavedChanges(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(sampleItems(), "alice")
	require.NoError(t, err)
	_, version := r.SnapshotForSave()
	r.MarkSaved(version)
	assert.False(t, r.Unsaved(1))

	status := "shipped"
	_, err = r.Update(1, entity.Patch{Status: &status})
	require.NoError(t, err)
	assert.True(t, r.Unsaved(1))

	persisted := []entity.Order{{ID: 1, CustomerID: "alice", Status: entity.StatusPending}}
	count, kept := r.MergeAndMarkProcessed(persisted, fixedNow)
	assert.Equal(t, 1, count)
	assert.Equal(t, []int64{1}, kept)

	one, _ := r.Get(1)
	assert.Equal(t, "shipped", one.Status)
	assert.True(t, one.Processed)
}

func TestRegistry_MarkSavedLeavesLaterChanges(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Create(sampleItems(), "alice")
	require.NoError(t, err)
	orders, version := r.SnapshotForSave()
	require.Len(t, orders, 1)

	_, err = r.Create(sampleItems(), "bob")
	require.NoError(t, err)
	r.MarkSaved(version)

	assert.False(t, r.Unsaved(1))
	assert.True(t, r.Unsaved(2))
}
