package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketlink/internal/models"

	"github.com/lib/pq"
)

// CreateOrder inserts a new repair order
func (s *Store) CreateOrder(ctx context.Context, order *models.RepairOrder) error {
	query := `
		INSERT INTO repair_orders (id, customer_id, vendor_id, variant_id, amount_minor, status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ID, order.CustomerID, order.VendorID, order.VariantID,
		order.AmountMinor, order.Status, order.PaymentMethod,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.RepairOrder, error) {
	var order models.RepairOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM repair_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByCustomer retrieves orders for a customer, newest first
func (s *Store) GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.RepairOrder, error) {
	var orders []models.RepairOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM repair_orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// TransitionOrderStatus moves an order between statuses, enforcing the
// lifecycle table. The status and updated_at change in one guarded UPDATE,
// so a concurrent transition on the same order makes the guard miss and
// the state is left untouched.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID, from, to string) error {
	if !models.CanTransition(from, to) {
		return models.ErrInvalidTransition
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE repair_orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("failed to transition order: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM repair_orders WHERE id = $1)", orderID); err != nil {
			return err
		}
		if !exists {
			return models.ErrOrderNotFound
		}
		return models.ErrInvalidTransition
	}
	return nil
}

// HasProcessedEvent checks the idempotency ledger for an external event id
func (s *Store) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payment_events WHERE event_id = $1)", eventID)
	return exists, err
}

// RecordPaymentEvent inserts a payment event audit record. The ledger is
// create-only; a second insert with the same event id fails on the unique
// constraint and returns ErrDuplicateEvent.
func (s *Store) RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (id, event_id, order_id, event_type, amount_minor, status, payload, processed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := s.db.QueryRowxContext(ctx, query,
		event.ID, event.EventID, event.OrderID, event.EventType,
		event.AmountMinor, event.Status, event.Payload,
		event.ProcessedAt, event.ErrorMessage,
	).Scan(&event.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ErrDuplicateEvent
	}
	return err
}

// ConfirmPayment applies the PENDING -> PAID transition, attaches the
// provider's payment reference, and records the processed payment event
// as one transaction. A guard miss or a duplicate event id aborts the
// whole transaction: the event is only marked processed when the
// transition was actually applied. The payment_intent_id column is
// unique, so one external payment reference maps to exactly one order.
func (s *Store) ConfirmPayment(ctx context.Context, orderID, paymentRef string, event *models.PaymentEvent) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.GetContext(ctx, &status,
		"SELECT status FROM repair_orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return models.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order row: %w", err)
	}

	// Re-check the ledger while holding the order row: a concurrent
	// delivery of the same event that committed first shows up here as a
	// duplicate, not as a failed transition.
	var exists bool
	err = tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM payment_events WHERE event_id = $1)", event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event ledger: %w", err)
	}
	if exists {
		return models.ErrDuplicateEvent
	}

	if !models.CanTransition(status, models.OrderStatusPaid) {
		return models.ErrInvalidTransition
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE repair_orders
		SET status = $1, payment_intent_id = $2, payment_method = 'provider', updated_at = NOW()
		WHERE id = $3`,
		models.OrderStatusPaid, paymentRef, orderID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("payment reference %s already attached to another order: %w", paymentRef, err)
		}
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	now := time.Now()
	event.Status = models.EventStatusProcessed
	event.ProcessedAt = &now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_events (id, event_id, order_id, event_type, amount_minor, status, payload, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.EventID, event.OrderID, event.EventType,
		event.AmountMinor, event.Status, event.Payload, event.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record payment event: %w", err)
	}

	return tx.Commit()
}
