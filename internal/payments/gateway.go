package payments

import (
	"errors"
	"time"
)

// ErrChargeFailed is returned when the external gateway cannot confirm a
// charge or a payout.
var ErrChargeFailed = errors.New("external charge failed")

// ChargeConfirmation is the gateway's proof that a direct payment went
// through. The lifecycle engine accepts a DIRECT-paid submission only after
// verifying such a confirmation; it never trusts the caller's word.
type ChargeConfirmation struct {
	Token     string    `json:"token"`
	Amount    int64     `json:"amount"` // FCFA
	Currency  string    `json:"currency"`
	Method    string    `json:"method"` // ORANGE_MONEY, MTN_MOMO, ...
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
}

// PayoutConfirmation is the gateway's acknowledgement of a payout to a
// mobile-money number.
type PayoutConfirmation struct {
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	CreatedAt time.Time `json:"created_at"`
}

// Gateway is the external payment collaborator boundary. Calls may be slow
// or fail; the core never invokes them while holding a ledger lock.
type Gateway interface {
	// ChargeDirect initiates an external charge and returns a confirmation
	// link/token the client completes out of band.
	ChargeDirect(userID string, amount int64, method, phone string) (ChargeConfirmation, error)
	// VerifyCharge resolves a charge token to its confirmation. A token that
	// is unknown or unpaid yields ErrChargeFailed.
	VerifyCharge(token string) (ChargeConfirmation, error)
	// Payout pushes wallet funds to an external destination.
	Payout(userID string, amount int64, method, destination string) (PayoutConfirmation, error)
}
