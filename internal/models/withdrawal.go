package models

import (
	"database/sql"
	"time"
)

// WithdrawalRequest is a request to pay out wallet funds to a mobile-money
// number. The destination number is stored encrypted. The WITHDRAWAL ledger
// debit is written when an admin approves the request, never before.
type WithdrawalRequest struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	Amount               int64          `json:"amount"` // FCFA
	Method               string         `json:"method"` // e.g. ORANGE_MONEY, MTN_MOMO
	DestinationEncrypted string         `json:"-"`
	Status               string         `json:"status"`
	AdminComment         sql.NullString `json:"admin_comment,omitempty"`
	LedgerEntryID        sql.NullString `json:"ledger_entry_id,omitempty"` // set once debited
	RequestedAt          time.Time      `json:"requested_at"`
	ProcessedAt          sql.NullTime   `json:"processed_at,omitempty"`
}
