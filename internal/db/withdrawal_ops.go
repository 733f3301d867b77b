package db

import (
	"log"
	"time"

	"coursio/internal/models"
	"coursio/internal/storage"
)

const withdrawalColumns = `id, user_id, amount, method, destination_encrypted, status,
    admin_comment, ledger_entry_id, requested_at, processed_at`

// CreateWithdrawal inserts a new withdrawal request.
func (p *Postgres) CreateWithdrawal(w models.WithdrawalRequest) error {
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now().UTC()
	}
	_, err := p.db.Exec(`
        INSERT INTO withdrawal_requests (id, user_id, amount, method, destination_encrypted,
            status, admin_comment, ledger_entry_id, requested_at, processed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.ID, w.UserID, w.Amount, w.Method, w.DestinationEncrypted, w.Status,
		w.AdminComment, w.LedgerEntryID, w.RequestedAt, w.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		log.Printf("CreateWithdrawal: error inserting request %s: %v", w.ID, err)
		return err
	}
	return nil
}

// WithdrawalByID retrieves a withdrawal request.
func (p *Postgres) WithdrawalByID(id string) (models.WithdrawalRequest, error) {
	w, err := scanWithdrawal(p.db.QueryRow(
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return models.WithdrawalRequest{}, mapNotFound(err)
	}
	return w, nil
}

// UpdateWithdrawal persists the request's status and processing fields.
func (p *Postgres) UpdateWithdrawal(w models.WithdrawalRequest) error {
	res, err := p.db.Exec(`
        UPDATE withdrawal_requests
        SET status = $2, admin_comment = $3, ledger_entry_id = $4, processed_at = $5
        WHERE id = $1`,
		w.ID, w.Status, w.AdminComment, w.LedgerEntryID, w.ProcessedAt)
	if err != nil {
		log.Printf("UpdateWithdrawal: error updating request %s: %v", w.ID, err)
		return err
	}
	return requireRowAffected(res)
}

// WithdrawalsByUser returns a user's withdrawal requests, most recent first.
func (p *Postgres) WithdrawalsByUser(userID string) ([]models.WithdrawalRequest, error) {
	return p.queryWithdrawals(
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY requested_at DESC`,
		userID)
}

// WithdrawalsByStatus returns withdrawal requests in the given status,
// oldest first so admins process the queue in order.
func (p *Postgres) WithdrawalsByStatus(status string) ([]models.WithdrawalRequest, error) {
	return p.queryWithdrawals(
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY requested_at ASC`,
		status)
}

func (p *Postgres) queryWithdrawals(query string, args ...interface{}) ([]models.WithdrawalRequest, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		log.Printf("queryWithdrawals: query error: %v", err)
		return nil, err
	}
	defer rows.Close()

	var withdrawals []models.WithdrawalRequest
	for rows.Next() {
		w, errScan := scanWithdrawal(rows)
		if errScan != nil {
			log.Printf("queryWithdrawals: scan error: %v", errScan)
			continue
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func scanWithdrawal(row rowScanner) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Method, &w.DestinationEncrypted,
		&w.Status, &w.AdminComment, &w.LedgerEntryID, &w.RequestedAt, &w.ProcessedAt)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	return w, nil
}
