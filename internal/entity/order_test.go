package entity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

func items(pairs ...int64) []entity.Item {
	out := make([]entity.Item, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, entity.Item{Price: decimal.NewFromInt(pairs[i]), Quantity: int(pairs[i+1])})
	}
	return out
}

func TestValidateItems(t *testing.T) {
	assert.ErrorIs(t, entity.ValidateItems(nil), entity.ErrItemsRequired)
	assert.ErrorIs(t, entity.ValidateItems(items(-1, 1)), entity.ErrNegativePrice)
	assert.ErrorIs(t, entity.ValidateItems(items(1, -1)), entity.ErrNegativeQuantity)
	assert.NoError(t, entity.ValidateItems(items(0, 0)))

	fine := []entity.Item{{Price: decimal.RequireFromString("19.9999"), Quantity: 1}}
	assert.NoError(t, entity.ValidateItems(fine))
	padded := []entity.Item{{Price: decimal.RequireFromString("2.500000"), Quantity: 1}}
	assert.NoError(t, entity.ValidateItems(padded))
	tooFine := []entity.Item{{Price: decimal.RequireFromString("0.00001"), Quantity: 1}}
	assert.ErrorIs(t, entity.ValidateItems(tooFine), entity.ErrPriceScale)
}

func TestTotals(t *testing.T) {
	lines := items(10, 2, 5, 3)

	assert.True(t, entity.SumPrices(lines).Equal(decimal.NewFromInt(15)))
	assert.True(t, entity.LineTotal(lines).Equal(decimal.NewFromInt(35)))
}

func TestClone_DoesNotAlias(t *testing.T) {
	now := time.Now()
	related := int64(2)
	value := decimal.NewFromInt(3)
	original := entity.Order{
		ID:              1,
		Items:           items(1, 1),
		CalculatedValue: &value,
		RelatedOrderID:  &related,
		UpdatedAt:       &now,
	}

	clone := original.Clone()
	clone.Items[0].Quantity = 99
	*clone.RelatedOrderID = 5
	*clone.CalculatedValue = decimal.NewFromInt(8)

	assert.Equal(t, 1, original.Items[0].Quantity)
	assert.Equal(t, int64(2), *original.RelatedOrderID)
	assert.True(t, original.CalculatedValue.Equal(decimal.NewFromInt(3)))
}

func TestOrder_JSONShape(t *testing.T) {
	order := entity.Order{ID: 4, CustomerID: "c-1", Status: entity.StatusPending, Items: items(10, 2)}
	payload, err := json.Marshal(order)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "c-1", decoded["customerId"])
	assert.NotContains(t, decoded, "calculatedValue")
	assert.NotContains(t, decoded, "BaseModel")
}

func raw(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestParsePatch(t *testing.T) {
	t.Run("known fields", func(t *testing.T) {
		patch, err := entity.ParsePatch(raw(t, `{"status":"shipped","processed":true,"items":[{"price":"2.5","quantity":4}]}`))
		require.NoError(t, err)
		require.NotNil(t, patch.Status)
		assert.Equal(t, "shipped", *patch.Status)
		require.NotNil(t, patch.Processed)
		assert.True(t, *patch.Processed)
		require.Len(t, patch.Items, 1)
		assert.True(t, patch.Items[0].Price.Equal(decimal.RequireFromString("2.5")))
		assert.Nil(t, patch.CustomerID)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := entity.ParsePatch(raw(t, `{"status":"x","relatedOrder":{}}`))
		var fieldErr *entity.PatchFieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "relatedOrder", fieldErr.Field)
		assert.Equal(t, "is unknown", fieldErr.Reason)
	})

	t.Run("read-only field", func(t *testing.T) {
		_, err := entity.ParsePatch(raw(t, `{"totalAmount":100}`))
		var fieldErr *entity.PatchFieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "is read-only", fieldErr.Reason)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, body := range []string{
			`{"status":""}`,
			`{"status":5}`,
			`{"customerId":""}`,
			`{"processed":"yes"}`,
			`{"items":[]}`,
			`{"items":[{"price":"-1","quantity":1}]}`,
		} {
			_, err := entity.ParsePatch(raw(t, body))
			assert.Error(t, err, body)
		}
	})

	t.Run("null values", func(t *testing.T) {
		for _, body := range []string{
			`{"status":null}`,
			`{"customerId":null}`,
			`{"items":null}`,
			`{"processed":null}`,
		} {
			_, err := entity.ParsePatch(raw(t, body))
			assert.Error(t, err, body)
		}

		_, err := entity.ParsePatch(raw(t, `{"processed": null}`))
		var fieldErr *entity.PatchFieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "processed", fieldErr.Field)
		assert.Equal(t, "must be a boolean", fieldErr.Reason)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := entity.ParsePatch(raw(t, `{}`))
		assert.ErrorIs(t, err, entity.ErrEmptyPatch)
	})
}

func TestPatch_Apply(t *testing.T) {
	status := entity.StatusProcessed
	order := entity.Order{ID: 1, CustomerID: "c", Status: entity.StatusPending, Items: items(10, 1), TotalAmount: decimal.NewFromInt(10)}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	entity.Patch{Status: &status}.Apply(&order, now)

	assert.Equal(t, entity.StatusProcessed, order.Status)
	assert.Equal(t, "c", order.CustomerID)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, order.UpdatedAt)
	assert.Equal(t, now, *order.UpdatedAt)
	assert.Nil(t, order.ProcessedAt)
}

func TestPatch_Validate(t *testing.T) {
	empty := ""
	assert.ErrorIs(t, entity.Patch{}.Validate(), entity.ErrEmptyPatch)
	assert.Error(t, entity.Patch{Status: &empty}.Validate())
	assert.Error(t, entity.Patch{Items: []entity.Item{}}.Validate())
}
