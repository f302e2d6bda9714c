package worker

import (
	"context"
	"errors"

	"marketlink/internal/broker"
	"marketlink/internal/models"
	"marketlink/internal/util"

	"go.uber.org/zap"
)

// FollowUpStore is the persistence the follow-up worker needs
type FollowUpStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.RepairOrder, error)
	TransitionOrderStatus(ctx context.Context, orderID, from, to string) error
}

// Notifier delivers customer notifications. Delivery content and transport
// are external concerns; the worker only needs a send capability.
type Notifier interface {
	SendInvoice(ctx context.Context, order *models.RepairOrder) error
}

// FollowUpWorker consumes order confirmation events and performs the
// non-critical post-payment work: invoice notification and the
// PAID -> PROCESSING transition.
type FollowUpWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        FollowUpStore
	notifier     Notifier
	logger       *zap.Logger
}

// NewFollowUpWorker creates a new follow-up worker
func NewFollowUpWorker(consumer *broker.Consumer, store FollowUpStore, notifier Notifier) *FollowUpWorker {
	w := &FollowUpWorker{
		consumer: consumer,
		store:    store,
		notifier: notifier,
		logger:   util.NamedLogger("followup"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderConfirmed(w.handleOrderConfirmed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *FollowUpWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting follow-up worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FollowUpWorker) Stop() error {
	w.logger.Info("Stopping follow-up worker")
	return w.consumer.Close()
}

// handleOrderConfirmed sends the invoice and moves the order to
// PROCESSING. A redelivered event finds the order already PROCESSING and
// the transition guard rejects it; that is treated as done, not an error,
// so the message is committed instead of redelivered forever.
func (w *FollowUpWorker) handleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			w.logger.Error("Follow-up for unknown order", zap.String("order_id", event.OrderID))
			return nil
		}
		return err
	}

	if err := w.notifier.SendInvoice(ctx, order); err != nil {
		w.logger.Error("Failed to send invoice",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	err = w.store.TransitionOrderStatus(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusProcessing)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			w.logger.Info("Order already past PAID, skipping transition",
				zap.String("order_id", order.ID),
				zap.String("status", order.Status))
			return nil
		}
		return err
	}

	w.logger.Info("Order moved to processing", zap.String("order_id", order.ID))
	return nil
}
