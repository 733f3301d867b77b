package db

import (
	"database/sql"
	"log"
	"time"

	"coursio/internal/models"
	"coursio/internal/storage"
)

// ApplyEntry appends a ledger entry and moves the user's cached wallet
// balance in one transaction. The user row is locked for the duration so
// concurrent entries for the same user serialize, and a debit that would
// drive the balance negative is rejected before anything is written.
func (p *Postgres) ApplyEntry(e models.LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	tx, err := p.db.Begin()
	if err != nil {
		log.Printf("ApplyEntry: error starting transaction: %v", err)
		return err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow(
		`SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE`, e.UserID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.ErrNotFound
		}
		log.Printf("ApplyEntry: error locking user %s: %v", e.UserID, err)
		return err
	}

	if balance+e.Amount < 0 {
		return storage.ErrNegativeBalance
	}

	_, err = tx.Exec(`
        INSERT INTO ledger_entries (id, user_id, amount, kind, related_request_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.Amount, e.Kind, nullIfEmpty(e.RelatedRequestID), e.CreatedAt)
	if err != nil {
		log.Printf("ApplyEntry: error inserting entry %s: %v", e.ID, err)
		return err
	}

	_, err = tx.Exec(
		`UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = NOW() WHERE id = $1`,
		e.UserID, e.Amount)
	if err != nil {
		log.Printf("ApplyEntry: error moving balance for user %s: %v", e.UserID, err)
		return err
	}

	if err = tx.Commit(); err != nil {
		log.Printf("ApplyEntry: error committing entry %s: %v", e.ID, err)
		return err
	}
	return nil
}

// WalletBalance returns the user's cached balance.
func (p *Postgres) WalletBalance(userID string) (int64, error) {
	var balance int64
	err := p.db.QueryRow(
		`SELECT wallet_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return balance, nil
}

// EntriesByUser returns the user's ledger entries, most recent first.
func (p *Postgres) EntriesByUser(userID string) ([]models.LedgerEntry, error) {
	rows, err := p.db.Query(`
        SELECT id, user_id, amount, kind, related_request_id, created_at
        FROM ledger_entries
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		log.Printf("EntriesByUser: query error for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// AllEntries returns every ledger entry, most recent first.
func (p *Postgres) AllEntries() ([]models.LedgerEntry, error) {
	rows, err := p.db.Query(`
        SELECT id, user_id, amount, kind, related_request_id, created_at
        FROM ledger_entries
        ORDER BY created_at DESC, id DESC`)
	if err != nil {
		log.Printf("AllEntries: query error: %v", err)
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EntryByReference returns the entry with the given kind and related
// reference, or storage.ErrNotFound when the reference was never applied.
func (p *Postgres) EntryByReference(kind, relatedRequestID string) (models.LedgerEntry, error) {
	e, err := scanEntry(p.db.QueryRow(`
        SELECT id, user_id, amount, kind, related_request_id, created_at
        FROM ledger_entries
        WHERE kind = $1 AND related_request_id = $2
        ORDER BY created_at DESC LIMIT 1`, kind, relatedRequestID))
	if err != nil {
		return models.LedgerEntry{}, mapNotFound(err)
	}
	return e, nil
}

func scanEntry(row rowScanner) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var relatedID sql.NullString
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &relatedID, &e.CreatedAt); err != nil {
		return models.LedgerEntry{}, err
	}
	e.RelatedRequestID = relatedID.String
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var relatedID sql.NullString
		if errScan := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Kind, &relatedID, &e.CreatedAt); errScan != nil {
			log.Printf("scanEntries: scan error: %v", errScan)
			continue
		}
		e.RelatedRequestID = relatedID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
