package models

import "time"

// Payout is an immutable log entry for one successfully dispatched transfer.
// A row is appended only after the on-chain transfer confirmed; the sum of
// Amount over a participant's rows always equals their BalancePaidTotal.
type Payout struct {
	ID        int64
	TgUserID  int64
	Amount    int64  // Token units, integral
	TxHash    string // Transaction hash returned by the dispatcher
	Kind      string // constants.PAYOUT_KIND_WELCOME or constants.PAYOUT_KIND_REFERRAL
	CreatedAt time.Time
}

// Reconciliation records a dispatch whose outcome could not be confirmed
// (timeout while awaiting the receipt, or bookkeeping failure after a
// confirmed transfer). Such cases are resolved manually by an operator;
// the engine never auto-retries them.
type Reconciliation struct {
	ID        string // UUID
	TgUserID  int64
	Amount    int64
	Kind      string
	TxHash    string // Empty if the transaction hash is unknown
	Reason    string
	Resolved  bool
	CreatedAt time.Time
}
