package models

import "time"

// Internal event types published to the follow-up topic
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
)

// BaseEvent contains common fields for all published events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published when a reservation produces a pending order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	VariantID   string `json:"variant_id"`
	AmountMinor int64  `json:"amount_minor"`
}

// OrderConfirmedEvent is published after a payment webhook is applied.
// The follow-up worker only needs the order id; everything else is
// re-read from the store when the task runs.
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
}
