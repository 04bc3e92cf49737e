package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmint/internal/adapter/memory"
	"reelmint/internal/domain"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return New(store, zerolog.Nop()), store
}

func TestRechargeAndBalance(t *testing.T) {
	ctx := context.Background()
	ldg, _ := newTestLedger(t)

	entry, err := ldg.Recharge(ctx, "user-1", 100, nil, "signup bonus")
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.BalanceAfter)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestRechargeRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	ldg, _ := newTestLedger(t)

	_, err := ldg.Recharge(ctx, "user-1", 0, nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = ldg.Recharge(ctx, "user-1", -5, nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExpiredGrantExcludedFromBalance(t *testing.T) {
	ctx := context.Background()
	ldg, _ := newTestLedger(t)

	past := time.Now().Add(-time.Hour)
	_, err := ldg.Recharge(ctx, "user-1", 50, &past, "expired promo")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	_, err = ldg.Recharge(ctx, "user-1", 30, &future, "active promo")
	require.NoError(t, err)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)
}

func TestReserveDeductsSpendable(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 10, nil, "")
	require.NoError(t, err)

	var res *domain.CreditReservation
	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		res, err = ldg.ReserveTx(ctx, tx, "user-1", "task-1", 10)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, res.Status)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// the hold is visible as one charge entry
	entries, err := ldg.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TxCharge, entries[0].Kind)
	assert.Equal(t, int64(-10), entries[0].Amount)
}

func TestReserveInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 5, nil, "")
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.ReserveTx(ctx, tx, "user-1", "task-1", 10)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// failed reservation leaves no trace
	entries, err := ldg.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestConcurrentReservesCannotOverspend(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 10, nil, "")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		reserved int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
				_, err := ldg.ReserveTx(ctx, tx, "user-1", taskID, 10)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			} else {
				reserved++
			}
		}("task-" + string(rune('a'+i)))
	}
	wg.Wait()

	assert.Equal(t, 1, reserved, "exactly one reservation must win")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrInsufficientBalance)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, balance, int64(0), "balance must never go negative")
}

func TestSettleXORRelease(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 10, nil, "")
	require.NoError(t, err)

	var res *domain.CreditReservation
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		res, err = ldg.ReserveTx(ctx, tx, "user-1", "task-1", 10)
		return err
	}))

	// settle wins
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.SettleTx(ctx, tx, res.ID)
		return err
	}))

	// release after settle is refused
	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.ReleaseTx(ctx, tx, res.ID, "late failure")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrReservationSettled)

	// second settle is refused too
	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.SettleTx(ctx, tx, res.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrReservationSettled)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestReleaseRefundsOnce(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 10, nil, "")
	require.NoError(t, err)

	var res *domain.CreditReservation
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		res, err = ldg.ReserveTx(ctx, tx, "user-1", "task-1", 10)
		return err
	}))

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.ReleaseTx(ctx, tx, res.ID, "content_policy")
		return err
	}))

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ldg.ReleaseTx(ctx, tx, res.ID, "again")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrReservationSettled)

	balance, err := ldg.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "refund restores the balance exactly once")

	entries, err := ldg.Transactions(ctx, "user-1", 10)
	require.NoError(t, err)
	var refunds int
	for _, e := range entries {
		if e.Kind == domain.TxRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestConcurrentSettleAndRelease(t *testing.T) {
	ctx := context.Background()
	ldg, store := newTestLedger(t)
	_, err := ldg.Recharge(ctx, "user-1", 10, nil, "")
	require.NoError(t, err)

	var res *domain.CreditReservation
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		res, err = ldg.ReserveTx(ctx, tx, "user-1", "task-1", 10)
		return err
	}))

	var wg sync.WaitGroup
	outcomes := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		outcomes <- store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			_, err := ldg.SettleTx(ctx, tx, res.ID)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		outcomes <- store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			_, err := ldg.ReleaseTx(ctx, tx, res.ID, "race")
			return err
		})
	}()
	wg.Wait()
	close(outcomes)

	var ok, settled int
	for err := range outcomes {
		if err == nil {
			ok++
		} else if assert.ErrorIs(t, err, domain.ErrReservationSettled) {
			settled++
		}
	}
	assert.Equal(t, 1, ok, "exactly one of settle/release wins")
	assert.Equal(t, 1, settled, "the loser is a no-op")
}
