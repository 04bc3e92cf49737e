package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"reelmint/internal/domain"
)

// CreditRepositoryPG implements domain.CreditRepository.
type CreditRepositoryPG struct {
	q querier
}

// LockUser takes a transaction-scoped advisory lock keyed on the user
// id, serializing balance mutations for that user.
func (r *CreditRepositoryPG) LockUser(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, userID)
	return err
}

// SpendableBalance sums the user's ledger, skipping expired recharge
// grants and flooring at zero.
func (r *CreditRepositoryPG) SpendableBalance(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `
SELECT GREATEST(COALESCE(SUM(amount), 0), 0)
FROM credit_transactions
WHERE user_id = $1
  AND (kind <> 'recharge' OR expires_at IS NULL OR expires_at > $2);
`
	var balance int64
	if err := r.q.QueryRow(ctx, query, userID, now).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// InsertTransaction appends one immutable ledger entry.
func (r *CreditRepositoryPG) InsertTransaction(ctx context.Context, tx *domain.CreditTransaction) error {
	query := `
INSERT INTO credit_transactions (id, user_id, kind, amount, balance_after, expires_at, task_id, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);
`
	_, err := r.q.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Kind,
		tx.Amount,
		tx.BalanceAfter,
		tx.ExpiresAt,
		nullableString(tx.TaskID),
		tx.Reason,
		tx.CreatedAt,
	)
	return err
}

// ListTransactions returns the user's ledger entries, newest first.
func (r *CreditRepositoryPG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	query := `
SELECT id, user_id, kind, amount, balance_after, expires_at, task_id, reason, created_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CreditTransaction
	for rows.Next() {
		var (
			entry  domain.CreditTransaction
			taskID *string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Kind,
			&entry.Amount,
			&entry.BalanceAfter,
			&entry.ExpiresAt,
			&taskID,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if taskID != nil {
			entry.TaskID = *taskID
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CreateReservation inserts a new credit hold.
func (r *CreditRepositoryPG) CreateReservation(ctx context.Context, res *domain.CreditReservation) error {
	query := `
INSERT INTO credit_reservations (id, user_id, task_id, amount, status, created_at, settled_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);
`
	_, err := r.q.Exec(ctx, query,
		res.ID,
		res.UserID,
		res.TaskID,
		res.Amount,
		res.Status,
		res.CreatedAt,
		res.SettledAt,
	)
	return err
}

// GetReservationForUpdate locks the reservation row, making settle and
// release mutually exclusive for the same reservation.
func (r *CreditRepositoryPG) GetReservationForUpdate(ctx context.Context, id string) (*domain.CreditReservation, error) {
	query := `
SELECT id, user_id, task_id, amount, status, created_at, settled_at
FROM credit_reservations
WHERE id = $1
FOR UPDATE;
`
	var res domain.CreditReservation
	err := r.q.QueryRow(ctx, query, id).Scan(
		&res.ID,
		&res.UserID,
		&res.TaskID,
		&res.Amount,
		&res.Status,
		&res.CreatedAt,
		&res.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// UpdateReservation rewrites the reservation's settlement state.
func (r *CreditRepositoryPG) UpdateReservation(ctx context.Context, res *domain.CreditReservation) error {
	query := `
UPDATE credit_reservations
SET status = $2, settled_at = $3
WHERE id = $1;
`
	tag, err := r.q.Exec(ctx, query, res.ID, res.Status, res.SettledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
