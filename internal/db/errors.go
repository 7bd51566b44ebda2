package db

import "errors"

// Ошибки нарушения инвариантов леджера.
// Ledger invariant violations surfaced to the reward engine and handlers.
var (
	// ErrWalletConflict: the normalized address is already bound to a
	// different participant. The caller's wallet is left unchanged.
	ErrWalletConflict = errors.New("wallet address already bound to another participant")

	// ErrSelfReferral: attribution with referrer == referee.
	ErrSelfReferral = errors.New("self-referral is not allowed")

	// ErrAlreadyAttributed: the referee already has a referrer recorded.
	ErrAlreadyAttributed = errors.New("referee already attributed")

	// ErrParticipantNotFound: no participant row for the given tg user id.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInsufficientOwed: a payout decrement would take owed_unpaid below
	// zero. Indicates the caller skipped the per-participant critical
	// section; the transaction is rolled back.
	ErrInsufficientOwed = errors.New("owed balance lower than payout amount")
)
