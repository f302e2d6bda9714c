package worker

import (
	"context"

	"marketlink/internal/models"
	"marketlink/internal/util"

	"go.uber.org/zap"
)

// LogNotifier is a Notifier that only logs. It stands in for the mail
// gateway in environments where none is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.NamedLogger("notifier")}
}

// SendInvoice logs the invoice dispatch
func (n *LogNotifier) SendInvoice(_ context.Context, order *models.RepairOrder) error {
	n.logger.Info("Invoice dispatched",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.Int64("amount_minor", order.AmountMinor))
	return nil
}
