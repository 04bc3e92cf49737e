// Package ledger is the bookkeeping source of truth for spendable
// credits. All balance mutations are serialized per user by the store's
// user lock, so concurrent reservations cannot over-spend.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reelmint/internal/domain"
)

// Ledger implements reserve/settle/release/recharge bookkeeping.
//
// Reserving credits writes the charge transaction immediately, so the
// amount leaves the spendable balance at submission time. Settlement
// finalizes the existing charge (reservation HELD -> CHARGED, no new
// entry); release appends a compensating refund entry (HELD ->
// RELEASED). Either way a reservation is settled exactly once.
type Ledger struct {
	store  domain.Store
	logger zerolog.Logger
}

func New(store domain.Store, logger zerolog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// ReserveTx holds amount credits against taskID inside the caller's
// transaction. Returns domain.ErrInsufficientBalance without side
// effects when the user cannot cover the amount.
func (l *Ledger) ReserveTx(ctx context.Context, tx domain.Tx, userID, taskID string, amount int64) (*domain.CreditReservation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: reservation amount must be positive", domain.ErrValidation)
	}
	credits := tx.Credits()
	if err := credits.LockUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	now := time.Now().UTC()
	balance, err := credits.SpendableBalance(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if balance < amount {
		return nil, domain.ErrInsufficientBalance
	}

	res := &domain.CreditReservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskID:    taskID,
		Amount:    amount,
		Status:    domain.ReservationHeld,
		CreatedAt: now,
	}
	if err := credits.CreateReservation(ctx, res); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	entry := &domain.CreditTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Kind:         domain.TxCharge,
		Amount:       -amount,
		BalanceAfter: balance - amount,
		TaskID:       taskID,
		Reason:       "video generation",
		CreatedAt:    now,
	}
	if err := credits.InsertTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert charge: %w", err)
	}
	return res, nil
}

// SettleTx converts a held reservation into a final charge inside the
// caller's transaction. A reservation that is no longer HELD yields
// domain.ErrReservationSettled and no mutation.
func (l *Ledger) SettleTx(ctx context.Context, tx domain.Tx, reservationID string) (*domain.CreditReservation, error) {
	credits := tx.Credits()
	res, err := credits.GetReservationForUpdate(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if res.Status != domain.ReservationHeld {
		return nil, domain.ErrReservationSettled
	}
	now := time.Now().UTC()
	res.Status = domain.ReservationCharged
	res.SettledAt = &now
	if err := credits.UpdateReservation(ctx, res); err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	return res, nil
}

// ReleaseTx refunds a held reservation inside the caller's transaction.
// A reservation that is no longer HELD yields
// domain.ErrReservationSettled and no mutation.
func (l *Ledger) ReleaseTx(ctx context.Context, tx domain.Tx, reservationID, reason string) (*domain.CreditTransaction, error) {
	credits := tx.Credits()
	res, err := credits.GetReservationForUpdate(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if res.Status != domain.ReservationHeld {
		return nil, domain.ErrReservationSettled
	}
	if err := credits.LockUser(ctx, res.UserID); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	now := time.Now().UTC()
	res.Status = domain.ReservationReleased
	res.SettledAt = &now
	if err := credits.UpdateReservation(ctx, res); err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	balance, err := credits.SpendableBalance(ctx, res.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	entry := &domain.CreditTransaction{
		ID:           uuid.NewString(),
		UserID:       res.UserID,
		Kind:         domain.TxRefund,
		Amount:       res.Amount,
		BalanceAfter: balance + res.Amount,
		TaskID:       res.TaskID,
		Reason:       reason,
		CreatedAt:    now,
	}
	if err := credits.InsertTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert refund: %w", err)
	}
	return entry, nil
}

// Recharge grants credits in its own transaction. ExpiresAt, when set,
// bounds how long the grant counts toward the spendable balance.
func (l *Ledger) Recharge(ctx context.Context, userID string, amount int64, expiresAt *time.Time, reason string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: recharge amount must be positive", domain.ErrValidation)
	}
	var entry *domain.CreditTransaction
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		credits := tx.Credits()
		if err := credits.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		now := time.Now().UTC()
		balance, err := credits.SpendableBalance(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		entry = &domain.CreditTransaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			Kind:         domain.TxRecharge,
			Amount:       amount,
			BalanceAfter: balance + amount,
			ExpiresAt:    expiresAt,
			Reason:       reason,
			CreatedAt:    now,
		}
		return credits.InsertTransaction(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info().Str("user_id", userID).Int64("amount", amount).Msg("credits recharged")
	return entry, nil
}

// Balance returns the current spendable balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.store.Credits().SpendableBalance(ctx, userID, time.Now().UTC())
}

// Transactions lists the user's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.store.Credits().ListTransactions(ctx, userID, limit)
}
