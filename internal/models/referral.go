package models

import "time"

// Referral is an attribution edge between two participants.
// Each referee appears at most once across all edges (unique referee_tg),
// and a participant can never refer themselves.
type Referral struct {
	ID         int64
	ReferrerTg int64 // TgUserID of the inviter
	RefereeTg  int64 // TgUserID of the invited participant
	CreatedAt  time.Time
}
