package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryConfirmStore mirrors the Postgres confirmation semantics: a unique
// event ledger and a guarded transition applied under one mutex, the way
// the real store applies them in one transaction.
type memoryConfirmStore struct {
	mu     sync.Mutex
	orders map[string]*models.RepairOrder
	events map[string]*models.PaymentEvent
}

func newMemoryConfirmStore(orders ...*models.RepairOrder) *memoryConfirmStore {
	s := &memoryConfirmStore{
		orders: make(map[string]*models.RepairOrder),
		events: make(map[string]*models.PaymentEvent),
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memoryConfirmStore) GetOrderByID(_ context.Context, id string) (*models.RepairOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *memoryConfirmStore) HasProcessedEvent(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.events[eventID]
	return ok, nil
}

func (s *memoryConfirmStore) RecordPaymentEvent(_ context.Context, event *models.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.EventID]; ok {
		return models.ErrDuplicateEvent
	}
	event.CreatedAt = time.Now()
	s.events[event.EventID] = event
	return nil
}

func (s *memoryConfirmStore) ConfirmPayment(_ context.Context, orderID, paymentRef string, event *models.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	if _, ok := s.events[event.EventID]; ok {
		return models.ErrDuplicateEvent
	}
	if !models.CanTransition(order.Status, models.OrderStatusPaid) {
		return models.ErrInvalidTransition
	}

	order.Status = models.OrderStatusPaid
	order.PaymentIntentID = paymentRef
	order.UpdatedAt = time.Now()

	now := time.Now()
	event.Status = models.EventStatusProcessed
	event.ProcessedAt = &now
	s.events[event.EventID] = event
	return nil
}

func (s *memoryConfirmStore) orderStatus(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *memoryConfirmStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memoryConfirmStore) event(eventID string) *models.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID]
}

// memoryQueue records follow-up submissions
type memoryQueue struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (q *memoryQueue) SubmitFollowUp(_ context.Context, orderID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	q.submitted = append(q.submitted, orderID)
	return nil
}

func (q *memoryQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.submitted)
}

func pendingOrder(id string, amount int64) *models.RepairOrder {
	return &models.RepairOrder{
		ID:          id,
		CustomerID:  "customer-1",
		VendorID:    "vendor-1",
		VariantID:   "variant-1",
		AmountMinor: amount,
		Status:      models.OrderStatusPending,
	}
}

func succeededEvent(eventID, orderID string, amount int64) *PaymentEventData {
	return &PaymentEventData{
		EventID:     eventID,
		EventType:   models.EventTypePaymentSucceeded,
		OrderID:     orderID,
		PaymentRef:  "pi_" + eventID,
		AmountMinor: amount,
	}
}

func TestHandlePaymentSucceeded_AppliesOnce(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1200))

	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, "order-1", outcome.OrderID)
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"))
	assert.Equal(t, "pi_evt-1", store.orders["order-1"].PaymentIntentID)
	assert.Equal(t, 1, store.eventCount())
	assert.Equal(t, models.EventStatusProcessed, store.event("evt-1").Status)
	assert.NotNil(t, store.event("evt-1").ProcessedAt)
	assert.Equal(t, 1, queue.count())
}

func TestHandlePaymentSucceeded_DuplicateDeliveryIsNoOp(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	_, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1200))
	require.NoError(t, err)

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1200))

	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, "event already processed", outcome.Reason)
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"))
	assert.Equal(t, 1, store.eventCount(), "no second event record")
	assert.Equal(t, 1, queue.count(), "no second follow-up")
}

func TestHandlePaymentSucceeded_AmountMismatch(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1000))

	assert.ErrorIs(t, err, models.ErrAmountMismatch)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.OrderStatusPending, store.orderStatus("order-1"),
		"a mismatched webhook does not fail the order")
	require.Equal(t, 1, store.eventCount())
	audit := store.event("evt-1")
	assert.Equal(t, models.EventStatusFailed, audit.Status)
	assert.Equal(t, int64(1000), audit.AmountMinor)
	assert.Equal(t, "amount mismatch", audit.ErrorMessage)
	assert.Equal(t, 0, queue.count())
}

func TestHandlePaymentSucceeded_MissingOrderID(t *testing.T) {
	store := newMemoryConfirmStore()
	p := NewPaymentProcessor(store, &memoryQueue{})

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "", 1200))

	assert.ErrorIs(t, err, models.ErrMalformedEvent)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, 0, store.eventCount())
}

func TestHandlePaymentSucceeded_OrderNotFound(t *testing.T) {
	store := newMemoryConfirmStore()
	p := NewPaymentProcessor(store, &memoryQueue{})

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "missing", 1200))

	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, 0, store.eventCount())
}

func TestHandlePaymentSucceeded_AlreadyPaidOrder(t *testing.T) {
	order := pendingOrder("order-1", 1200)
	order.Status = models.OrderStatusPaid
	store := newMemoryConfirmStore(order)
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-2", "order-1", 1200))

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"))
	assert.Equal(t, 0, store.eventCount(), "rejected event must not be recorded as processed")
	assert.Equal(t, 0, queue.count())
}

func TestHandlePaymentSucceeded_ConcurrentDistinctEvents(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, eventID := range []string{"evt-a", "evt-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent(id, "order-1", 1200))
			results <- err
		}(eventID)
	}
	wg.Wait()
	close(results)

	var applied, rejected int
	for err := range results {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrDuplicateEvent):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, applied, "exactly one event reaches the PENDING->PAID guard")
	assert.Equal(t, 1, rejected)
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"))
	assert.Equal(t, 1, store.eventCount())
	assert.Equal(t, 1, queue.count())
}

func TestHandlePaymentSucceeded_ConcurrentSameEvent(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{}
	p := NewPaymentProcessor(store, queue)

	type result struct {
		outcome Outcome
		err     error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1200))
			results <- result{outcome, err}
		}()
	}
	wg.Wait()
	close(results)

	for res := range results {
		require.NoError(t, res.err, "both deliveries of the same event are acknowledged")
		assert.True(t, res.outcome.Accepted)
	}
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"))
	assert.Equal(t, 1, store.eventCount(), "one side-effecting transition, one record")
	assert.Equal(t, 1, queue.count(), "follow-up enqueued once")
}

func TestHandlePaymentSucceeded_EnqueueFailureDoesNotRollBack(t *testing.T) {
	store := newMemoryConfirmStore(pendingOrder("order-1", 1200))
	queue := &memoryQueue{err: errors.New("broker down")}
	p := NewPaymentProcessor(store, queue)

	outcome, err := p.HandlePaymentSucceeded(context.Background(), succeededEvent("evt-1", "order-1", 1200))

	require.NoError(t, err)
	assert.True(t, outcome.Accepted)
	assert.Equal(t, models.OrderStatusPaid, store.orderStatus("order-1"),
		"confirmation survives a failed enqueue")
	assert.Equal(t, 1, store.eventCount())
}
