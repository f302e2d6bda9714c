package service

import (
	"context"
	"fmt"
	"time"

	"marketlink/internal/models"
	"marketlink/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the order and catalog persistence needed to place orders
type OrderStore interface {
	GetVariantByID(ctx context.Context, id string) (*models.ServiceVariant, error)
	CreateOrder(ctx context.Context, order *models.RepairOrder) error
	GetOrderByID(ctx context.Context, id string) (*models.RepairOrder, error)
	GetOrdersByCustomer(ctx context.Context, customerID string) ([]models.RepairOrder, error)
}

// OrderEventPublisher publishes order lifecycle events, best-effort
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// OrderService places and reads repair orders
type OrderService struct {
	store       OrderStore
	coordinator *ReservationCoordinator
	ledger      StockLedger
	events      OrderEventPublisher
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	coordinator *ReservationCoordinator,
	ledger StockLedger,
	events OrderEventPublisher,
) *OrderService {
	return &OrderService{
		store:       store,
		coordinator: coordinator,
		ledger:      ledger,
		events:      events,
		logger:      util.NamedLogger("orders"),
	}
}

// PlaceOrder reserves one unit of the variant and creates a PENDING order
// priced at the variant's current price. The stock decrement and the order
// insert are separate writes: when the insert fails the unit is released
// again, but a crash between the two leaves a decrement with no order.
// That window is reconciled out of band, not here.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID, variantID string) (*models.RepairOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	variant, err := s.store.GetVariantByID(ctx, variantID)
	if err != nil {
		return nil, err
	}

	if err := s.coordinator.TryReserve(ctx, variantID); err != nil {
		return nil, err
	}

	order := &models.RepairOrder{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		VendorID:    variant.VendorID,
		VariantID:   variant.ID,
		AmountMinor: variant.PriceMinor,
		Status:      models.OrderStatusPending,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		s.logger.Error("Order insert failed after reservation, releasing unit",
			zap.String("variant_id", variantID),
			zap.Error(err))
		if relErr := s.ledger.ReleaseUnit(ctx, variantID); relErr != nil {
			s.logger.Error("Failed to release unit during compensation",
				zap.String("variant_id", variantID),
				zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Repair order created",
		zap.String("order_id", order.ID),
		zap.String("variant_id", variantID))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		VariantID:   order.VariantID,
		AmountMinor: order.AmountMinor,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.RepairOrder, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// ListCustomerOrders retrieves a customer's orders, newest first
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]models.RepairOrder, error) {
	return s.store.GetOrdersByCustomer(ctx, customerID)
}
