package models

import "time"

// LedgerEntry is one immutable balance-affecting event for a user. Positive
// amounts are credits, negative amounts are debits. The sum of a user's
// entries is the wallet balance.
type LedgerEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Amount           int64     `json:"amount"` // FCFA, signed
	Kind             string    `json:"kind"`
	RelatedRequestID string    `json:"related_request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
