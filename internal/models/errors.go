package models

import "errors"

// Domain error taxonomy shared by the store and service layers.
var (
	// ErrLockUnavailable means another reservation holds the variant's
	// coordination lock. Transient; never retried internally.
	ErrLockUnavailable = errors.New("stock lock unavailable")

	// ErrStockExhausted means the variant has no units left. Terminal for
	// the attempt.
	ErrStockExhausted = errors.New("stock exhausted")

	ErrVariantNotFound = errors.New("service variant not found")
	ErrOrderNotFound   = errors.New("order not found")

	// ErrMalformedEvent means a webhook payload is missing required fields.
	ErrMalformedEvent = errors.New("malformed payment event")

	// ErrAmountMismatch means the webhook amount does not equal the order
	// total. The order stays PENDING; only an audit record is written.
	ErrAmountMismatch = errors.New("payment amount does not match order total")

	// ErrInvalidTransition means an order status change violates the
	// lifecycle table. State is left unchanged.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrDuplicateEvent means the event id already exists in the payment
	// event ledger. Raised by the storage uniqueness constraint, so it is
	// correct even when two deliveries race past the pre-check.
	ErrDuplicateEvent = errors.New("payment event already recorded")
)
