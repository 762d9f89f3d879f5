package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bookstore/services/storefront/internal/db"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventCarriesCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-1")
	ev := NewEvent(ctx, EventTypeCatalogCreated, map[string]interface{}{"id": 1})

	assert.Equal(t, "req-1", ev.CorrelationID)
	assert.Equal(t, EventTypeCatalogCreated, ev.EventType)
	assert.Equal(t, eventVersion, ev.EventVersion)
	assert.NotEmpty(t, ev.EventID)

	other := NewEvent(context.Background(), EventTypeCatalogCreated, nil)
	assert.Empty(t, other.CorrelationID)
	assert.NotEqual(t, ev.EventID, other.EventID)
}

func TestWithCorrelationIDIgnoresEmpty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithCorrelationID(ctx, ""))
}

func TestBookPayload(t *testing.T) {
	book := &db.Book{
		ID:     3,
		ISBN:   "978-0",
		Title:  "Dune",
		Author: "Frank Herbert",
		Genre:  "Science Fiction",
		Price:  decimal.RequireFromString("12.5"),
	}

	payload := bookPayload(book)
	assert.Equal(t, "12.50", payload["price"])
	assert.Equal(t, uint(3), payload["id"])
	assert.Equal(t, "Dune", payload["title"])
}

func TestOrderPayloadSerializes(t *testing.T) {
	order := &db.Order{
		ID:     9,
		UserID: 2,
		Total:  decimal.RequireFromString("25"),
		Items: []db.OrderItem{
			{BookID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("12.5")},
		},
	}

	body, err := json.Marshal(NewEvent(context.Background(), EventTypeOrderCreated, orderPayload(order)))
	require.NoError(t, err)

	var decoded struct {
		EventType string `json:"event_type"`
		Payload   struct {
			OrderID uint   `json:"order_id"`
			Total   string `json:"total"`
			Items   []struct {
				BookID    uint   `json:"book_id"`
				Quantity  int    `json:"quantity"`
				UnitPrice string `json:"unit_price"`
			} `json:"items"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, EventTypeOrderCreated, decoded.EventType)
	assert.Equal(t, uint(9), decoded.Payload.OrderID)
	assert.Equal(t, "25.00", decoded.Payload.Total)
	require.Len(t, decoded.Payload.Items, 1)
	assert.Equal(t, "12.50", decoded.Payload.Items[0].UnitPrice)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	ctx := context.Background()

	assert.NoError(t, p.PublishBookCreated(ctx, &db.Book{}))
	assert.NoError(t, p.PublishBooksDeleted(ctx, []uint{1}, false))
	assert.NoError(t, p.PublishOrderCreated(ctx, &db.Order{}))
	assert.True(t, p.IsHealthy())
	assert.NoError(t, p.Close())
}
