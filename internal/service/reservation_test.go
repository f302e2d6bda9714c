package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLocker mirrors the Redis lock semantics: set-if-absent acquire,
// token-checked release.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]string)}
}

func (l *memoryLocker) Acquire(_ context.Context, resource, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[resource]; ok {
		return false, nil
	}
	l.held[resource] = token
	return true, nil
}

func (l *memoryLocker) Release(_ context.Context, resource, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[resource] == token {
		delete(l.held, resource)
	}
	return nil
}

func (l *memoryLocker) holder(resource string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[resource]
}

// memoryLedger is a mutex-guarded stock counter
type memoryLedger struct {
	mu    sync.Mutex
	stock map[string]int
	err   error
}

func newMemoryLedger(variantID string, stock int) *memoryLedger {
	return &memoryLedger{stock: map[string]int{variantID: stock}}
}

func (m *memoryLedger) ReserveUnit(_ context.Context, variantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.stock[variantID] > 0 {
		m.stock[variantID]--
		return true, nil
	}
	return false, nil
}

func (m *memoryLedger) ReleaseUnit(_ context.Context, variantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[variantID]++
	return nil
}

func (m *memoryLedger) current(variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[variantID]
}

func TestTryReserve_Success(t *testing.T) {
	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", 3)
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	err := rc.TryReserve(context.Background(), "variant-1")

	require.NoError(t, err)
	assert.Equal(t, 2, ledger.current("variant-1"))
	assert.Empty(t, locker.holder("variant-1"), "lock must be released")
}

func TestTryReserve_StockExhausted(t *testing.T) {
	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", 0)
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	err := rc.TryReserve(context.Background(), "variant-1")

	assert.ErrorIs(t, err, models.ErrStockExhausted)
	assert.Equal(t, 0, ledger.current("variant-1"), "exhausted variant must not be decremented")
	assert.Empty(t, locker.holder("variant-1"))
}

func TestTryReserve_LockHeld(t *testing.T) {
	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", 5)
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	held, err := locker.Acquire(context.Background(), "variant-1", "other-holder", 30*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	err = rc.TryReserve(context.Background(), "variant-1")

	assert.ErrorIs(t, err, models.ErrLockUnavailable)
	assert.Equal(t, 5, ledger.current("variant-1"), "no decrement without the lock")
	assert.Equal(t, "other-holder", locker.holder("variant-1"), "foreign lock must survive")
}

func TestTryReserve_ReleasesLockOnLedgerError(t *testing.T) {
	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", 5)
	ledger.err = errors.New("connection reset")
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	err := rc.TryReserve(context.Background(), "variant-1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrStockExhausted)
	assert.Empty(t, locker.holder("variant-1"), "lock must be released on ledger failure")
}

func TestTryReserve_ExactlyStockManySucceed(t *testing.T) {
	const initialStock = 5
	const attempts = 40

	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", initialStock)
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	var reserved, exhausted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Lock contention is transient; callers retry at their own
			// layer until they reach a terminal outcome.
			for {
				err := rc.TryReserve(context.Background(), "variant-1")
				if err == nil {
					reserved.Add(1)
					return
				}
				if errors.Is(err, models.ErrStockExhausted) {
					exhausted.Add(1)
					return
				}
				if !errors.Is(err, models.ErrLockUnavailable) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), reserved.Load())
	assert.Equal(t, int32(attempts-initialStock), exhausted.Load())
	assert.Equal(t, 0, ledger.current("variant-1"))
	assert.GreaterOrEqual(t, ledger.current("variant-1"), 0, "stock must never go negative")
}

func TestTryReserve_InterleavedReserveRelease(t *testing.T) {
	locker := newMemoryLocker()
	ledger := newMemoryLedger("variant-1", 2)
	rc := NewReservationCoordinator(locker, ledger, 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := rc.TryReserve(context.Background(), "variant-1")
				if errors.Is(err, models.ErrLockUnavailable) {
					continue
				}
				if err == nil {
					_ = ledger.ReleaseUnit(context.Background(), "variant-1")
				}
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ledger.current("variant-1"), "every reserve was compensated")
}

func TestRelease_StaleTokenDoesNotUnlockNewHolder(t *testing.T) {
	locker := newMemoryLocker()
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "variant-1", "token-a", 30*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	// token-a expires, token-b takes over
	require.NoError(t, locker.Release(ctx, "variant-1", "token-a"))
	held, err = locker.Acquire(ctx, "variant-1", "token-b", 30*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	// the stale holder releasing again must not evict token-b
	require.NoError(t, locker.Release(ctx, "variant-1", "token-a"))
	assert.Equal(t, "token-b", locker.holder("variant-1"))
}
