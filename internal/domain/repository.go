package domain

import (
	"context"
	"time"
)

// TaskRepository defines persistence for video tasks. Inside a Store
// transaction, GetForUpdate acquires the per-task row lock that
// serializes concurrent status updates for the same task.
type TaskRepository interface {
	Create(ctx context.Context, task *VideoTask) error
	GetByID(ctx context.Context, id string) (*VideoTask, error)
	GetByProviderTaskID(ctx context.Context, provider, providerTaskID string) (*VideoTask, error)
	GetForUpdate(ctx context.Context, id string) (*VideoTask, error)
	Update(ctx context.Context, task *VideoTask) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]VideoTask, error)
	// ListStaleSubmitted returns tasks still SUBMITTED whose submission is
	// older than the cutoff, for the reconciliation sweep.
	ListStaleSubmitted(ctx context.Context, olderThan time.Time, limit int) ([]VideoTask, error)
}

// CreditRepository defines persistence for the credit ledger. Inside a
// Store transaction, LockUser serializes balance mutations for one user.
type CreditRepository interface {
	LockUser(ctx context.Context, userID string) error
	// SpendableBalance is the sum of transaction amounts, skipping expired
	// recharge grants and flooring at zero. Held reservations are already
	// reflected by the charge entry written at reservation time.
	SpendableBalance(ctx context.Context, userID string, now time.Time) (int64, error)
	InsertTransaction(ctx context.Context, tx *CreditTransaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
	CreateReservation(ctx context.Context, res *CreditReservation) error
	GetReservationForUpdate(ctx context.Context, id string) (*CreditReservation, error)
	UpdateReservation(ctx context.Context, res *CreditReservation) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Tasks() TaskRepository
	Credits() CreditRepository
}

// Store is the transactional persistence boundary. WithinTx runs fn in
// a single transaction, committing on nil and rolling back on error.
// The top-level repositories auto-commit each call.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Tasks() TaskRepository
	Credits() CreditRepository
}
