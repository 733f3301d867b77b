package models

import "time"

// FeeConfig is the admin-editable process-wide configuration: service prices,
// agent commission percentage and the referral bonus. Read by the lifecycle
// engine and the referral graph; mutated only through the admin config
// operation.
type FeeConfig struct {
	Prices                 map[string]int64 `json:"prices"` // service type -> FCFA
	CommissionAgentPercent int64            `json:"commission_agent_percent"`
	ReferralBonus          int64            `json:"referral_bonus"`
	MinWithdrawal          int64            `json:"min_withdrawal"`
	// RefundOnReject controls whether rejecting a WALLET-paid request issues
	// a compensating REFUND credit. Off by default.
	RefundOnReject bool      `json:"refund_on_reject"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PriceFor returns the fee for a service type, or 0 and false when the type
// has no configured price.
func (c FeeConfig) PriceFor(serviceType string) (int64, bool) {
	p, ok := c.Prices[serviceType]
	return p, ok
}
