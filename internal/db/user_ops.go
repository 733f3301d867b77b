package db

import (
	"database/sql"
	"log"
	"time"

	"coursio/internal/models"
	"coursio/internal/storage"
)

const userColumns = `id, name, email, phone, role, status, credential_hash, zone,
    referral_code, referred_by, wallet_balance, referral_count, created_at, updated_at`

// CreateUser inserts a new user record.
func (p *Postgres) CreateUser(u models.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := p.db.Exec(`
        INSERT INTO users (id, name, email, phone, role, status, credential_hash, zone,
            referral_code, referred_by, wallet_balance, referral_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Name, u.Email, u.Phone, u.Role, u.Status, u.CredentialHash,
		nullIfEmpty(u.Zone), nullIfEmpty(u.ReferralCode), nullIfEmpty(u.ReferredBy),
		u.WalletBalance, u.ReferralCount, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		log.Printf("CreateUser: error inserting user %s: %v", u.Email, err)
		return err
	}
	return nil
}

// UserByID retrieves a user by ID.
func (p *Postgres) UserByID(id string) (models.User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UserByEmail retrieves a user by email.
func (p *Postgres) UserByEmail(email string) (models.User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UserByReferralCode retrieves the owner of a referral code.
func (p *Postgres) UserByReferralCode(code string) (models.User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
}

// UpdateUser persists all mutable user fields. The wallet balance column is
// deliberately not written here: only ApplyEntry moves it.
func (p *Postgres) UpdateUser(u models.User) error {
	res, err := p.db.Exec(`
        UPDATE users
        SET name = $2, email = $3, phone = $4, role = $5, status = $6,
            credential_hash = $7, zone = $8, referral_code = $9, referred_by = $10,
            updated_at = NOW()
        WHERE id = $1`,
		u.ID, u.Name, u.Email, u.Phone, u.Role, u.Status, u.CredentialHash,
		nullIfEmpty(u.Zone), nullIfEmpty(u.ReferralCode), nullIfEmpty(u.ReferredBy))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		log.Printf("UpdateUser: error updating user %s: %v", u.ID, err)
		return err
	}
	return requireRowAffected(res)
}

// IncrementReferralCount bumps the user's referral counter.
func (p *Postgres) IncrementReferralCount(id string) error {
	res, err := p.db.Exec(
		`UPDATE users SET referral_count = referral_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		log.Printf("IncrementReferralCount: error for user %s: %v", id, err)
		return err
	}
	return requireRowAffected(res)
}

// ListUsers returns users with the given role, or all users when role is
// empty. Deleted accounts are excluded.
func (p *Postgres) ListUsers(role string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status != 'DELETED'`
	args := []interface{}{}
	if role != "" {
		query += ` AND role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := p.db.Query(query, args...)
	if err != nil {
		log.Printf("ListUsers: query error (role=%q): %v", role, err)
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, errScan := p.scanUserRow(rows)
		if errScan != nil {
			log.Printf("ListUsers: scan error: %v", errScan)
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (p *Postgres) scanUser(row rowScanner) (models.User, error) {
	u, err := p.scanUserRow(row)
	if err != nil {
		return models.User{}, mapNotFound(err)
	}
	return u, nil
}

func (p *Postgres) scanUserRow(row rowScanner) (models.User, error) {
	var u models.User
	var zone, referralCode, referredBy sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.Status,
		&u.CredentialHash, &zone, &referralCode, &referredBy,
		&u.WalletBalance, &u.ReferralCount, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	u.Zone = zone.String
	u.ReferralCode = referralCode.String
	u.ReferredBy = referredBy.String
	return u, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
