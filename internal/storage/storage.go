package storage

import (
	"errors"

	"coursio/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// ErrConflict is returned when a write violates a uniqueness rule
// (duplicate email, duplicate referral code, second referral edge for the
// same referee).
var ErrConflict = errors.New("storage: conflict")

// ErrNegativeBalance is returned by ApplyEntry when a debit would drive the
// cached wallet balance below zero. The ledger performs the authoritative
// check under its own lock; implementations keep this guard as well so the
// invariant holds even against writes that bypass the ledger.
var ErrNegativeBalance = errors.New("storage: entry would drive balance negative")

// UserStore holds user records and referral linkage counters.
type UserStore interface {
	CreateUser(u models.User) error
	UserByID(id string) (models.User, error)
	UserByEmail(email string) (models.User, error)
	UserByReferralCode(code string) (models.User, error)
	UpdateUser(u models.User) error
	IncrementReferralCount(id string) error
	// ListUsers returns users with the given role, or all users when role
	// is empty. Deleted users are excluded.
	ListUsers(role string) ([]models.User, error)
}

// LedgerStore is the append-only record of balance-affecting events.
type LedgerStore interface {
	// ApplyEntry appends the entry and moves the user's cached wallet
	// balance by entry.Amount in a single atomic step.
	ApplyEntry(e models.LedgerEntry) error
	WalletBalance(userID string) (int64, error)
	// EntriesByUser returns the user's entries, most recent first.
	EntriesByUser(userID string) ([]models.LedgerEntry, error)
	// AllEntries returns every entry, most recent first (admin exports).
	AllEntries() ([]models.LedgerEntry, error)
	// EntryByReference returns the entry with the given kind and related
	// reference, or ErrNotFound. Used to keep recharge confirmations
	// single-use.
	EntryByReference(kind, relatedRequestID string) (models.LedgerEntry, error)
}

// ReferralStore records who referred whom. At most one edge per referee.
type ReferralStore interface {
	// CreateReferral records the edge. Returns ErrConflict when the referee
	// is already linked to a referrer.
	CreateReferral(r models.Referral) error
	UpdateReferral(r models.Referral) error
	ReferralByReferee(refereeID string) (models.Referral, error)
	ReferralsByReferrer(referrerID string) ([]models.Referral, error)
}

// RequestStore holds service requests.
type RequestStore interface {
	// CreateRequest inserts the request. Returns ErrConflict when its charge
	// token already funded another request.
	CreateRequest(r models.ServiceRequest) error
	// ChargeTokenUsed reports whether a request was already funded by the
	// given charge token.
	ChargeTokenUsed(token string) (bool, error)
	RequestByID(id string) (models.ServiceRequest, error)
	UpdateRequest(r models.ServiceRequest) error
	RequestsByClient(clientID string) ([]models.ServiceRequest, error)
	RequestsByAgent(agentID string) ([]models.ServiceRequest, error)
	// ListRequests returns requests with the given status, or all when
	// status is empty, most recent first.
	ListRequests(status string) ([]models.ServiceRequest, error)
}

// ConfigStore holds the single admin-editable fee configuration row.
type ConfigStore interface {
	FeeConfig() (models.FeeConfig, error)
	SaveFeeConfig(c models.FeeConfig) error
}

// WithdrawalStore holds withdrawal requests.
type WithdrawalStore interface {
	CreateWithdrawal(w models.WithdrawalRequest) error
	WithdrawalByID(id string) (models.WithdrawalRequest, error)
	UpdateWithdrawal(w models.WithdrawalRequest) error
	WithdrawalsByUser(userID string) ([]models.WithdrawalRequest, error)
	WithdrawalsByStatus(status string) ([]models.WithdrawalRequest, error)
}

// SupportStore holds message threads, the comment moderation queue and the
// activity log.
type SupportStore interface {
	CreateMessage(m models.Message) error
	MessagesForUser(userID string) ([]models.Message, error)
	AllMessages() ([]models.Message, error)
	MarkMessageRead(id string) error
	CreateComment(c models.BlogComment) error
	CommentsByStatus(status string) ([]models.BlogComment, error)
	ModerateComment(id, status string) error
	AppendActivity(a models.ActivityLog) error
	RecentActivity(limit int) ([]models.ActivityLog, error)
}

// Store is the full storage surface. internal/db implements it against
// Postgres; Memory implements it in-process for tests and dev mode.
type Store interface {
	UserStore
	LedgerStore
	ReferralStore
	RequestStore
	ConfigStore
	WithdrawalStore
	SupportStore
}
