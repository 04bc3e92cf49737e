package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("invalid request")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrProviderFailure     = errors.New("provider failure")
	// ErrSubmissionPending marks a submission whose provider-side outcome
	// is unknown (transport error after the request left). The task stays
	// SUBMITTED and is reconciled later by poll, webhook or the sweeper.
	ErrSubmissionPending  = errors.New("submission outcome unknown")
	ErrSignatureInvalid   = errors.New("invalid callback signature")
	ErrTaskNotTerminal    = errors.New("task not in a terminal state")
	ErrReservationSettled = errors.New("reservation already settled")
)
