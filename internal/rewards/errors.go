package rewards

import (
	"errors"
	"fmt"
	"strings"

	"srd-airdrop-bot/internal/membership"
)

var (
	// ErrInvalidAddress: the submitted string is not a well-formed chain
	// address. Recovered locally: the participant is re-prompted.
	ErrInvalidAddress = errors.New("invalid wallet address")

	// ErrNoWallet: the transition needs a bound payout address.
	ErrNoWallet = errors.New("no wallet address on file")

	// ErrAlreadyWelcomed: the one-time welcome reward was already dispatched.
	ErrAlreadyWelcomed = errors.New("welcome reward already paid")

	// ErrNothingOwed: manual withdrawal with an empty accrued balance.
	ErrNothingOwed = errors.New("nothing owed")

	// ErrReconciliationPending: a previous dispatch for this participant has
	// an unconfirmed outcome; further payouts are refused until an operator
	// resolves it (a blind retry could double-pay).
	ErrReconciliationPending = errors.New("a previous payout awaits manual reconciliation")
)

// MembershipError: one or more required channels are not joined. Fully
// retryable; carries the per-channel results so the caller can name the
// unjoined channels.
type MembershipError struct {
	Results []membership.Result
}

func (e *MembershipError) Error() string {
	return fmt.Sprintf("required channels not joined: %s", strings.Join(e.Missing(), ", "))
}

// Missing lists the channels whose requirement is unsatisfied.
func (e *MembershipError) Missing() []string {
	return membership.Missing(e.Results)
}

// DispatchFailedError: the transfer definitively failed; the ledger is
// exactly as it was before the attempt and the participant may retry.
type DispatchFailedError struct {
	Err error
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("payout dispatch failed: %v", e.Err)
}

func (e *DispatchFailedError) Unwrap() error { return e.Err }

// DispatchUnknownError: the transfer outcome could not be confirmed. The
// credit was NOT consumed and NOT marked paid; a reconciliation record was
// written and the participant is frozen for payouts until it is resolved.
type DispatchUnknownError struct {
	ReconciliationID string
	TxHash           string
}

func (e *DispatchUnknownError) Error() string {
	return fmt.Sprintf("payout outcome unknown, reconciliation %s opened (tx %q)", e.ReconciliationID, e.TxHash)
}
