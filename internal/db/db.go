// internal/db/db.go
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"coursio/internal/constants"
	"coursio/internal/storage"
)

var DB *sql.DB

// Postgres implements storage.Store against the shared connection pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a store backed by the given pool. Call InitDB first.
func NewPostgres(pool *sql.DB) *Postgres {
	return &Postgres{db: pool}
}

// InitDB opens the database connection and runs the migrations.
func InitDB() error {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	var err error
	DB, err = sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("error opening database connection: %v", err)
	}

	DB.SetMaxOpenConns(50)
	DB.SetMaxIdleConns(20)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("error verifying database connection: %v", err)
	}
	log.Println("Connected to the database.")

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("error starting table creation transaction: %v", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Printf("Rolling back table creation transaction: %v", err)
			tx.Rollback()
		}
	}()

	createTablesSQL := `
        CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name VARCHAR(150),
            email TEXT UNIQUE,
            phone VARCHAR(20),
            role TEXT,
            status TEXT,
            credential_hash TEXT,
            zone TEXT,
            referral_code TEXT UNIQUE,
            referred_by TEXT,
            wallet_balance BIGINT DEFAULT 0,
            referral_count INTEGER DEFAULT 0,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS ledger_entries (
            id TEXT PRIMARY KEY,
            user_id TEXT REFERENCES users(id),
            amount BIGINT NOT NULL,
            kind TEXT NOT NULL,
            related_request_id TEXT,
            created_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS referrals (
            id TEXT PRIMARY KEY,
            referrer_id TEXT REFERENCES users(id),
            referee_id TEXT UNIQUE REFERENCES users(id),
            code TEXT,
            bonus_entry_id TEXT,
            created_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS service_requests (
            id TEXT PRIMARY KEY,
            client_id TEXT REFERENCES users(id),
            type TEXT,
            status TEXT,
            details TEXT,
            attachments TEXT[],
            final_document TEXT,
            assigned_agent_id TEXT,
            payment_method TEXT,
            price BIGINT,
            charge_token TEXT,
            reject_reason TEXT,
            created_at TIMESTAMP,
            updated_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS fee_config (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            prices JSONB NOT NULL,
            commission_agent_percent BIGINT NOT NULL,
            referral_bonus BIGINT NOT NULL,
            min_withdrawal BIGINT NOT NULL,
            refund_on_reject BOOLEAN DEFAULT FALSE,
            updated_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS withdrawal_requests (
            id TEXT PRIMARY KEY,
            user_id TEXT REFERENCES users(id),
            amount BIGINT NOT NULL,
            method TEXT,
            destination_encrypted TEXT,
            status TEXT NOT NULL,
            admin_comment TEXT,
            ledger_entry_id TEXT,
            requested_at TIMESTAMP NOT NULL,
            processed_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            sender_id TEXT,
            sender_name TEXT,
            receiver_role TEXT,
            subject TEXT,
            content TEXT,
            is_read BOOLEAN DEFAULT FALSE,
            is_admin_response BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS blog_comments (
            id TEXT PRIMARY KEY,
            post_id TEXT,
            author_name TEXT,
            content TEXT,
            status TEXT,
            created_at TIMESTAMP
        );
        CREATE TABLE IF NOT EXISTS activity_log (
            id TEXT PRIMARY KEY,
            user_id TEXT,
            user_name TEXT,
            user_role TEXT,
            action TEXT,
            details TEXT,
            created_at TIMESTAMP
        );
    `
	_, err = tx.Exec(createTablesSQL)
	if err != nil {
		return fmt.Errorf("error creating tables: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error committing table creation transaction: %v", err)
	}
	log.Println("Table creation (if not exists) finished.")

	err = migrateDBSchema()
	if err != nil {
		return fmt.Errorf("error running schema migration: %v", err)
	}

	createIndexesSQL := `
        CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
        CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code);
        CREATE INDEX IF NOT EXISTS idx_users_role_status ON users(role, status);
        CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_id ON ledger_entries(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_ledger_entries_kind_related ON ledger_entries(kind, related_request_id);
        CREATE INDEX IF NOT EXISTS idx_referrals_referrer_id ON referrals(referrer_id);
        CREATE INDEX IF NOT EXISTS idx_service_requests_client_status ON service_requests(client_id, status);
        CREATE INDEX IF NOT EXISTS idx_service_requests_agent ON service_requests(assigned_agent_id);
        CREATE INDEX IF NOT EXISTS idx_service_requests_created_at ON service_requests(created_at);
        CREATE UNIQUE INDEX IF NOT EXISTS idx_service_requests_charge_token ON service_requests(charge_token) WHERE charge_token IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user ON withdrawal_requests(user_id);
        CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_status ON withdrawal_requests(status);
        CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
        CREATE INDEX IF NOT EXISTS idx_blog_comments_status ON blog_comments(status);
        CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log(created_at);
    `
	indexStatements := strings.Split(strings.TrimSpace(createIndexesSQL), ";")
	for _, stmt := range indexStatements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue
		}
		_, errIdx := DB.Exec(trimmedStmt)
		if errIdx != nil {
			log.Printf("Warning: error creating index ('%s'): %v", trimmedStmt, errIdx)
		}
	}
	log.Println("Index creation (if not exists) finished.")

	if err := seedFeeConfig(); err != nil {
		return fmt.Errorf("error seeding fee configuration: %v", err)
	}

	log.Println("Database initialization finished.")
	return nil
}

// migrateDBSchema applies idempotent column additions for schemas created by
// older builds.
func migrateDBSchema() error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "users.zone",
			sql:  `ALTER TABLE users ADD COLUMN IF NOT EXISTS zone TEXT;`,
		},
		{
			name: "users.referral_count",
			sql:  `ALTER TABLE users ADD COLUMN IF NOT EXISTS referral_count INTEGER DEFAULT 0;`,
		},
		{
			name: "service_requests.reject_reason",
			sql:  `ALTER TABLE service_requests ADD COLUMN IF NOT EXISTS reject_reason TEXT;`,
		},
		{
			name: "service_requests.charge_token",
			sql:  `ALTER TABLE service_requests ADD COLUMN IF NOT EXISTS charge_token TEXT;`,
		},
		{
			name: "fee_config.refund_on_reject",
			sql:  `ALTER TABLE fee_config ADD COLUMN IF NOT EXISTS refund_on_reject BOOLEAN DEFAULT FALSE;`,
		},
		{
			name: "fee_config.min_withdrawal",
			sql:  `ALTER TABLE fee_config ADD COLUMN IF NOT EXISTS min_withdrawal BIGINT DEFAULT 2000;`,
		},
		{
			name: "withdrawal_requests.ledger_entry_id",
			sql:  `ALTER TABLE withdrawal_requests ADD COLUMN IF NOT EXISTS ledger_entry_id TEXT;`,
		},
		{
			name: "referrals.bonus_entry_id",
			sql:  `ALTER TABLE referrals ADD COLUMN IF NOT EXISTS bonus_entry_id TEXT;`,
		},
	}

	for _, migration := range migrations {
		_, err := DB.Exec(migration.sql)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Printf("INFO: migration '%s' skipped, object already exists. Details: %v", migration.name, err)
			} else {
				return fmt.Errorf("schema migration error ('%s'): %v", migration.name, err)
			}
		}
	}

	log.Println("Database schema migration finished.")
	return nil
}

// seedFeeConfig inserts the default configuration row when none exists yet.
func seedFeeConfig() error {
	defaults := map[string]int64{
		constants.SERVICE_ETAT_CIVIL:          constants.DEFAULT_PRICE_ETAT_CIVIL,
		constants.SERVICE_CASIER_JUDICIAIRE:   constants.DEFAULT_PRICE_CASIER_JUDICIAIRE,
		constants.SERVICE_LEGALISATION:        constants.DEFAULT_PRICE_LEGALISATION,
		constants.SERVICE_CREATION_ENTREPRISE: constants.DEFAULT_PRICE_CREATION_ENTREPRISE,
		constants.SERVICE_GESTION_DOSSIER:     constants.DEFAULT_PRICE_GESTION_DOSSIER,
	}
	pricesJSON, err := json.Marshal(defaults)
	if err != nil {
		return err
	}
	_, err = DB.Exec(`
        INSERT INTO fee_config (id, prices, commission_agent_percent, referral_bonus, min_withdrawal, refund_on_reject, updated_at)
        VALUES (1, $1, $2, $3, $4, FALSE, NOW())
        ON CONFLICT (id) DO NOTHING`,
		pricesJSON,
		constants.DEFAULT_COMMISSION_AGENT_PERCENT,
		constants.DEFAULT_REFERRAL_BONUS,
		constants.DEFAULT_MIN_WITHDRAWAL,
	)
	return err
}

// CloseDB closes the database connection.
func CloseDB() {
	if DB != nil {
		DB.Close()
		log.Println("Database connection closed.")
	}
}

// mapNotFound turns sql.ErrNoRows into the storage sentinel.
func mapNotFound(err error) error {
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}
