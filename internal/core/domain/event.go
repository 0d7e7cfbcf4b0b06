package domain

import (
	"encoding/json"
	"time"
)

const EventOrderPlaced = "order.placed"

// OutboxEvent is appended in the same transaction as the state change it describes.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type OrderPlacedPayload struct {
	OrderID  string            `json:"order_id"`
	UserID   string            `json:"user_id"`
	Total    string            `json:"total"`
	Lines    []OrderPlacedLine `json:"lines"`
	PlacedAt time.Time         `json:"placed_at"`
}

type OrderPlacedLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}
