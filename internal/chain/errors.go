package chain

import "fmt"

// TransferFailedError: the transfer definitively did not move funds — the
// transaction was never sent, or it was mined and reverted. Safe to retry.
type TransferFailedError struct {
	TxHash string // Empty when the transaction was never broadcast
	Reason string
	Err    error
}

func (e *TransferFailedError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("token transfer %s failed: %s", e.TxHash, e.Reason)
	}
	return fmt.Sprintf("token transfer failed: %s", e.Reason)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// OutcomeUnknownError: the transfer may or may not have landed — the
// transaction was (or may have been) broadcast but no receipt was observed
// in time. NOT safe to retry blindly; callers must route this to manual
// reconciliation instead of treating it as either success or failure.
type OutcomeUnknownError struct {
	TxHash string // Empty when even the broadcast could not be confirmed
	Reason string
}

func (e *OutcomeUnknownError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("token transfer %s outcome unknown: %s", e.TxHash, e.Reason)
	}
	return fmt.Sprintf("token transfer outcome unknown: %s", e.Reason)
}
