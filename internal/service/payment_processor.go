package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketlink/internal/models"
	"marketlink/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentEventData is a verified provider webhook event. Signature
// verification happens at the HTTP boundary before this is built.
type PaymentEventData struct {
	EventID     string
	EventType   string
	OrderID     string
	PaymentRef  string
	AmountMinor int64
	Payload     json.RawMessage
}

// Outcome is the processor's reply to the webhook caller
type Outcome struct {
	Accepted bool
	Reason   string
	OrderID  string
}

// ConfirmationStore is the persistence needed to confirm payments
type ConfirmationStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.RepairOrder, error)

	// HasProcessedEvent checks the idempotency ledger for an event id
	HasProcessedEvent(ctx context.Context, eventID string) (bool, error)

	// RecordPaymentEvent appends an audit record; create-only per event id
	RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) error

	// ConfirmPayment applies PENDING -> PAID, attaches the payment
	// reference, and records the processed event in one transaction;
	// nothing is recorded when the guard misses
	ConfirmPayment(ctx context.Context, orderID, paymentRef string, event *models.PaymentEvent) error
}

// FollowUpQueue submits post-payment work for asynchronous execution
type FollowUpQueue interface {
	SubmitFollowUp(ctx context.Context, orderID string) error
}

// PaymentProcessor applies provider payment webhooks to order state
// exactly once, however many times they are delivered.
type PaymentProcessor struct {
	store  ConfirmationStore
	queue  FollowUpQueue
	logger *zap.Logger
}

// NewPaymentProcessor creates a new payment processor
func NewPaymentProcessor(store ConfirmationStore, queue FollowUpQueue) *PaymentProcessor {
	return &PaymentProcessor{
		store:  store,
		queue:  queue,
		logger: util.NamedLogger("payments"),
	}
}

// HandlePaymentSucceeded processes a payment-succeeded webhook:
// validate, look up the order, short-circuit duplicates, verify the
// amount, then transition the order and record the event in one
// transaction. The follow-up enqueue after commit is best-effort and
// never rolls back the confirmation.
func (p *PaymentProcessor) HandlePaymentSucceeded(ctx context.Context, evt *PaymentEventData) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "PaymentProcessor.HandlePaymentSucceeded")
	defer span.End()

	util.WebhooksReceivedTotal.Inc()
	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if evt.EventID == "" || evt.OrderID == "" {
		p.logger.Error("Webhook event missing event id or order id",
			zap.String("event_id", evt.EventID))
		util.WebhooksRejectedTotal.WithLabelValues("malformed").Inc()
		return Outcome{Reason: "missing order id in event metadata"}, models.ErrMalformedEvent
	}

	order, err := p.store.GetOrderByID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			p.logger.Error("Webhook references unknown order",
				zap.String("order_id", evt.OrderID),
				zap.String("event_id", evt.EventID))
			util.WebhooksRejectedTotal.WithLabelValues("order_not_found").Inc()
			return Outcome{Reason: "order not found", OrderID: evt.OrderID}, err
		}
		return Outcome{OrderID: evt.OrderID}, fmt.Errorf("failed to load order: %w", err)
	}

	processed, err := p.store.HasProcessedEvent(ctx, evt.EventID)
	if err != nil {
		return Outcome{OrderID: order.ID}, fmt.Errorf("failed to check idempotency ledger: %w", err)
	}
	if processed {
		p.logger.Warn("Duplicate webhook delivery",
			zap.String("event_id", evt.EventID),
			zap.String("order_id", order.ID))
		util.WebhooksDuplicateTotal.Inc()
		return Outcome{Accepted: true, Reason: "event already processed", OrderID: order.ID}, nil
	}

	if evt.AmountMinor != order.AmountMinor {
		p.logger.Error("Webhook amount mismatch",
			zap.String("order_id", order.ID),
			zap.Int64("expected", order.AmountMinor),
			zap.Int64("got", evt.AmountMinor))
		util.WebhooksRejectedTotal.WithLabelValues("amount_mismatch").Inc()

		audit := &models.PaymentEvent{
			ID:           uuid.New().String(),
			EventID:      evt.EventID,
			OrderID:      order.ID,
			EventType:    models.EventTypePaymentFailed,
			AmountMinor:  evt.AmountMinor,
			Status:       models.EventStatusFailed,
			Payload:      evt.Payload,
			ErrorMessage: "amount mismatch",
		}
		if err := p.store.RecordPaymentEvent(ctx, audit); err != nil && !errors.Is(err, models.ErrDuplicateEvent) {
			p.logger.Error("Failed to record amount-mismatch audit event", zap.Error(err))
		}

		return Outcome{Reason: "payment amount does not match order total", OrderID: order.ID}, models.ErrAmountMismatch
	}

	event := &models.PaymentEvent{
		ID:          uuid.New().String(),
		EventID:     evt.EventID,
		OrderID:     order.ID,
		EventType:   evt.EventType,
		AmountMinor: evt.AmountMinor,
		Payload:     evt.Payload,
	}

	if err := p.store.ConfirmPayment(ctx, order.ID, evt.PaymentRef, event); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateEvent):
			// Lost the race against a concurrent delivery of the same
			// event; the other one was applied.
			util.WebhooksDuplicateTotal.Inc()
			return Outcome{Accepted: true, Reason: "event already processed", OrderID: order.ID}, nil
		case errors.Is(err, models.ErrInvalidTransition):
			p.logger.Warn("Order not in PENDING state, webhook not applied",
				zap.String("order_id", order.ID),
				zap.String("event_id", evt.EventID))
			util.WebhooksRejectedTotal.WithLabelValues("invalid_transition").Inc()
			return Outcome{Reason: "order is not pending payment", OrderID: order.ID}, err
		default:
			return Outcome{OrderID: order.ID}, fmt.Errorf("failed to confirm payment: %w", err)
		}
	}

	util.OrdersPaidTotal.Inc()
	p.logger.Info("Order marked as paid",
		zap.String("order_id", order.ID),
		zap.String("event_id", evt.EventID))

	if err := p.queue.SubmitFollowUp(ctx, order.ID); err != nil {
		p.logger.Error("Failed to enqueue follow-up task",
			zap.String("order_id", order.ID),
			zap.Error(err))
		util.FollowUpEnqueueFailedTotal.Inc()
	} else {
		util.FollowUpEnqueuedTotal.Inc()
	}

	return Outcome{Accepted: true, Reason: "payment processed", OrderID: order.ID}, nil
}
