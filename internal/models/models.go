package models

import (
	"encoding/json"
	"time"
)

// ServiceVariant is a bookable variant of a vendor's repair service.
// Stock is mutated only through the store's ledger operations.
type ServiceVariant struct {
	ID               string    `db:"id" json:"id"`
	VendorID         string    `db:"vendor_id" json:"vendor_id"`
	ServiceName      string    `db:"service_name" json:"service_name"`
	Name             string    `db:"name" json:"name"`
	PriceMinor       int64     `db:"price_minor" json:"price_minor"`
	Stock            int       `db:"stock" json:"stock"`
	EstimatedMinutes int       `db:"estimated_minutes" json:"estimated_minutes"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RepairOrder is a customer's order for one unit of a service variant.
// Terminal orders are retained for audit and never deleted.
type RepairOrder struct {
	ID              string    `db:"id" json:"id"`
	CustomerID      string    `db:"customer_id" json:"customer_id"`
	VendorID        string    `db:"vendor_id" json:"vendor_id"`
	VariantID       string    `db:"variant_id" json:"variant_id"`
	AmountMinor     int64     `db:"amount_minor" json:"amount_minor"`
	Status          string    `db:"status" json:"status"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method,omitempty"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentEvent records one observed webhook delivery. EventID is the
// provider's event id and is unique: the ledger is create-only.
type PaymentEvent struct {
	ID           string          `db:"id" json:"id"`
	EventID      string          `db:"event_id" json:"event_id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	AmountMinor  int64           `db:"amount_minor" json:"amount_minor"`
	Status       string          `db:"status" json:"status"`
	Payload      json.RawMessage `db:"payload" json:"payload,omitempty"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusPaid       = "PAID"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusFailed     = "FAILED"
	OrderStatusCancelled  = "CANCELLED"
)

// Payment event statuses
const (
	EventStatusPending   = "PENDING"
	EventStatusProcessed = "PROCESSED"
	EventStatusFailed    = "FAILED"
)

// Payment event types
const (
	EventTypePaymentSucceeded = "payment_intent.succeeded"
	EventTypePaymentFailed    = "payment_intent.payment_failed"
)
