package models

import "time"

// Referral is the edge recorded when a new user registers with another
// user's referral code. Created once at registration, never mutated.
type Referral struct {
	ID           string    `json:"id"`
	ReferrerID   string    `json:"referrer_id"`
	RefereeID    string    `json:"referee_id"`
	Code         string    `json:"code"`           // the referral code that was supplied
	BonusEntryID string    `json:"bonus_entry_id"` // ledger entry for the one-time bonus
	CreatedAt    time.Time `json:"created_at"`
}
