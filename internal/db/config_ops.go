package db

import (
	"encoding/json"
	"log"
	"time"

	"coursio/internal/models"
)

// FeeConfig reads the single configuration row.
func (p *Postgres) FeeConfig() (models.FeeConfig, error) {
	var c models.FeeConfig
	var pricesJSON []byte
	err := p.db.QueryRow(`
        SELECT prices, commission_agent_percent, referral_bonus, min_withdrawal,
            refund_on_reject, updated_at
        FROM fee_config WHERE id = 1`).Scan(
		&pricesJSON, &c.CommissionAgentPercent, &c.ReferralBonus,
		&c.MinWithdrawal, &c.RefundOnReject, &c.UpdatedAt)
	if err != nil {
		log.Printf("FeeConfig: error reading configuration: %v", err)
		return models.FeeConfig{}, mapNotFound(err)
	}
	if err := json.Unmarshal(pricesJSON, &c.Prices); err != nil {
		log.Printf("FeeConfig: error unmarshalling prices: %v", err)
		return models.FeeConfig{}, err
	}
	return c, nil
}

// SaveFeeConfig replaces the configuration row.
func (p *Postgres) SaveFeeConfig(c models.FeeConfig) error {
	pricesJSON, err := json.Marshal(c.Prices)
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err = p.db.Exec(`
        INSERT INTO fee_config (id, prices, commission_agent_percent, referral_bonus,
            min_withdrawal, refund_on_reject, updated_at)
        VALUES (1, $1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            prices = EXCLUDED.prices,
            commission_agent_percent = EXCLUDED.commission_agent_percent,
            referral_bonus = EXCLUDED.referral_bonus,
            min_withdrawal = EXCLUDED.min_withdrawal,
            refund_on_reject = EXCLUDED.refund_on_reject,
            updated_at = EXCLUDED.updated_at`,
		pricesJSON, c.CommissionAgentPercent, c.ReferralBonus,
		c.MinWithdrawal, c.RefundOnReject, c.UpdatedAt)
	if err != nil {
		log.Printf("SaveFeeConfig: error saving configuration: %v", err)
	}
	return err
}
