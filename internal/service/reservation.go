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

// Locker is a short-lived mutual-exclusion primitive keyed by resource id.
// Callers that fail to acquire report unavailability upward; there is no
// queueing or fairness.
type Locker interface {
	// Acquire takes the lock if absent, returns false if already held
	Acquire(ctx context.Context, resource, token string, ttl time.Duration) (bool, error)

	// Release removes the lock only if the stored token matches
	Release(ctx context.Context, resource, token string) error
}

// StockLedger is the transactional stock counter. The ledger alone is the
// source of truth for stock correctness; the lock on top only narrows the
// race window to one in-flight attempt per variant.
type StockLedger interface {
	// ReserveUnit decrements one unit if stock > 0, returns false otherwise
	ReserveUnit(ctx context.Context, variantID string) (bool, error)

	// ReleaseUnit increments stock by one (compensation)
	ReleaseUnit(ctx context.Context, variantID string) error
}

// ReservationCoordinator layers the coordination lock over the
// transactional decrement to produce an atomic-looking reservation.
type ReservationCoordinator struct {
	locker  Locker
	ledger  StockLedger
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewReservationCoordinator creates a new reservation coordinator
func NewReservationCoordinator(locker Locker, ledger StockLedger, lockTTL time.Duration) *ReservationCoordinator {
	return &ReservationCoordinator{
		locker:  locker,
		ledger:  ledger,
		lockTTL: lockTTL,
		logger:  util.NamedLogger("reservation"),
	}
}

// TryReserve attempts to reserve one unit of a variant. A nil return
// means the unit is reserved. ErrLockUnavailable means another
// reservation for the same variant is in flight right now; it is never
// retried here. ErrStockExhausted means the variant is sold out.
//
// The lock is released on every exit path after acquisition, including
// ledger errors. If the holder crashes anyway, the TTL expires the lock
// and the transactional decrement still protects the counter.
func (rc *ReservationCoordinator) TryReserve(ctx context.Context, variantID string) error {
	ctx, span := util.StartSpan(ctx, "ReservationCoordinator.TryReserve")
	defer span.End()

	util.ReservationAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.ReservationLatency.Observe(time.Since(start).Seconds())
	}()

	token := uuid.New().String()

	acquired, err := rc.locker.Acquire(ctx, variantID, token, rc.lockTTL)
	if err != nil {
		util.ReservationFailedTotal.WithLabelValues("lock_error").Inc()
		return fmt.Errorf("failed to acquire stock lock: %w", err)
	}
	if !acquired {
		rc.logger.Info("Stock lock held by another reservation",
			zap.String("variant_id", variantID))
		util.ReservationFailedTotal.WithLabelValues("lock_unavailable").Inc()
		return models.ErrLockUnavailable
	}

	defer func() {
		if err := rc.locker.Release(ctx, variantID, token); err != nil {
			rc.logger.Error("Failed to release stock lock",
				zap.String("variant_id", variantID),
				zap.Error(err))
		}
	}()

	reserved, err := rc.ledger.ReserveUnit(ctx, variantID)
	if err != nil {
		util.ReservationFailedTotal.WithLabelValues("ledger_error").Inc()
		return fmt.Errorf("failed to reserve unit: %w", err)
	}
	if !reserved {
		rc.logger.Warn("Stock exhausted", zap.String("variant_id", variantID))
		util.ReservationFailedTotal.WithLabelValues("stock_exhausted").Inc()
		return models.ErrStockExhausted
	}

	util.ReservationSuccessTotal.Inc()
	rc.logger.Info("Stock reserved", zap.String("variant_id", variantID))
	return nil
}
