package domain

import "time"

// ReservationStatus enumerates the states of a credit reservation.
type ReservationStatus string

const (
	ReservationHeld     ReservationStatus = "HELD"
	ReservationCharged  ReservationStatus = "CHARGED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// CreditReservation soft-locks credits against a task until its outcome
// is known. It is settled (charged) or released (refunded) exactly once.
type CreditReservation struct {
	ID        string
	UserID    string
	TaskID    string
	Amount    int64
	Status    ReservationStatus
	CreatedAt time.Time
	SettledAt *time.Time
}

// TransactionKind enumerates the business reason for a ledger entry.
type TransactionKind string

const (
	TxRecharge TransactionKind = "recharge"
	TxCharge   TransactionKind = "charge"
	TxRefund   TransactionKind = "refund"
	TxAdjust   TransactionKind = "adjust"
)

// CreditTransaction is an immutable ledger entry. Amount is signed:
// recharges and refunds are positive, charges negative. ExpiresAt is
// set only on recharge grants; an expired grant no longer counts toward
// the spendable balance.
type CreditTransaction struct {
	ID           string
	UserID       string
	Kind         TransactionKind
	Amount       int64
	BalanceAfter int64
	ExpiresAt    *time.Time
	TaskID       string
	Reason       string
	CreatedAt    time.Time
}
