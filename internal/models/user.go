package models

import "time"

// User represents a user in the system: a client, an agent, an admin or a
// partner. WalletBalance is a cached projection of the user's ledger entries
// and is never mutated outside the ledger operations.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	CredentialHash string    `json:"-"`
	Zone           string    `json:"zone,omitempty"`          // agents: operating locality
	ReferralCode   string    `json:"referral_code,omitempty"` // clients only, stable for life
	ReferredBy     string    `json:"referred_by,omitempty"`   // referral code of the sponsor
	WalletBalance  int64     `json:"wallet_balance"`          // FCFA
	ReferralCount  int       `json:"referral_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe to hand to API clients.
func (u User) Sanitized() User {
	u.CredentialHash = ""
	return u
}
