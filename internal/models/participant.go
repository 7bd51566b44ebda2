package models

import (
	"database/sql"
	"time"
)

// Participant represents a single campaign participant.
// Участник кампании. Создается при первом контакте, никогда не удаляется.
type Participant struct {
	ID                  int64
	TgUserID            int64          // Stable Telegram user id
	Username            sql.NullString // Display handle, optional
	WalletAddress       sql.NullString // EIP-55 checksummed once set; unique across participants
	MembershipVerified  bool           // Cached last verification result, not authoritative
	WelcomePaid         bool           // True once the one-time welcome payout dispatched
	ReferralCount       int64          // Lifetime number of attributed referees, never decremented
	OwedUnpaid          int64          // Accrued referral credit in token units, never negative
	BalancePaidTotal    int64          // Sum of all successfully dispatched amounts
	ReferredBy          sql.NullInt64  // TgUserID of the inviter, set at most once
	PendingInput        sql.NullString // Persisted dialogue expectation (constants.PENDING_*)
	NeedsReconciliation bool           // Set when a dispatch outcome could not be confirmed
	CreatedAt           time.Time
}

// HasWallet reports whether a payout address has been bound.
func (p Participant) HasWallet() bool {
	return p.WalletAddress.Valid && p.WalletAddress.String != ""
}
