package db

import (
	"database/sql"
	"log"
	"time"

	"coursio/internal/models"
	"coursio/internal/storage"
)

// CreateReferral records a referral edge. The referee_id unique constraint
// enforces at most one sponsor per referee regardless of races.
func (p *Postgres) CreateReferral(r models.Referral) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
        INSERT INTO referrals (id, referrer_id, referee_id, code, bonus_entry_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.ReferrerID, r.RefereeID, r.Code, nullIfEmpty(r.BonusEntryID), r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		log.Printf("CreateReferral: error inserting edge %s -> %s: %v", r.ReferrerID, r.RefereeID, err)
		return err
	}
	return nil
}

// UpdateReferral persists the bonus entry reference on an existing edge.
func (p *Postgres) UpdateReferral(r models.Referral) error {
	res, err := p.db.Exec(
		`UPDATE referrals SET bonus_entry_id = $2 WHERE id = $1`,
		r.ID, nullIfEmpty(r.BonusEntryID))
	if err != nil {
		log.Printf("UpdateReferral: error updating edge %s: %v", r.ID, err)
		return err
	}
	return requireRowAffected(res)
}

// ReferralByReferee returns the edge pointing at the given referee.
func (p *Postgres) ReferralByReferee(refereeID string) (models.Referral, error) {
	r, err := scanReferral(p.db.QueryRow(`
        SELECT id, referrer_id, referee_id, code, bonus_entry_id, created_at
        FROM referrals WHERE referee_id = $1`, refereeID))
	if err != nil {
		return models.Referral{}, mapNotFound(err)
	}
	return r, nil
}

// ReferralsByReferrer returns all edges originating from the given referrer,
// most recent first.
func (p *Postgres) ReferralsByReferrer(referrerID string) ([]models.Referral, error) {
	rows, err := p.db.Query(`
        SELECT id, referrer_id, referee_id, code, bonus_entry_id, created_at
        FROM referrals
        WHERE referrer_id = $1
        ORDER BY created_at DESC`, referrerID)
	if err != nil {
		log.Printf("ReferralsByReferrer: query error for user %s: %v", referrerID, err)
		return nil, err
	}
	defer rows.Close()

	var referrals []models.Referral
	for rows.Next() {
		r, errScan := scanReferral(rows)
		if errScan != nil {
			log.Printf("ReferralsByReferrer: scan error: %v", errScan)
			continue
		}
		referrals = append(referrals, r)
	}
	return referrals, rows.Err()
}

func scanReferral(row rowScanner) (models.Referral, error) {
	var r models.Referral
	var bonusEntryID sql.NullString
	err := row.Scan(&r.ID, &r.ReferrerID, &r.RefereeID, &r.Code, &bonusEntryID, &r.CreatedAt)
	if err != nil {
		return models.Referral{}, err
	}
	r.BonusEntryID = bonusEntryID.String
	return r, nil
}
