package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"coursio/internal/models"
	"coursio/internal/storage"
)

// Sentinel errors. Business outcomes, not failures: callers are expected to
// handle them.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUserNotFound      = errors.New("user not found")
)

// InsufficientFundsError carries the offending amount and the balance at the
// time of the check. Matches ErrInsufficientFunds under errors.Is.
type InsufficientFundsError struct {
	UserID  string
	Balance int64
	Amount  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: user %s balance %d, debit %d", e.UserID, e.Balance, e.Amount)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Ledger is the single source of truth for every balance change. The
// balance-check-then-append in Debit runs under a per-user lock so concurrent
// debits and credits on the same user are serialized; the store keeps the
// cached wallet balance in step with the appended entry atomically.
type Ledger struct {
	store storage.LedgerStore
	locks *userLocks
}

// New returns a Ledger over the given store.
func New(store storage.LedgerStore) *Ledger {
	return &Ledger{store: store, locks: newUserLocks()}
}

// Debit removes amount from the user's wallet. amount must be positive; the
// entry is recorded with a negative amount. Fails with ErrInsufficientFunds
// when the resulting balance would go negative, leaving the ledger untouched.
func (l *Ledger) Debit(userID string, amount int64, kind, relatedRequestID string) (models.LedgerEntry, error) {
	if amount <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("debit of %d: %w", amount, ErrInvalidAmount)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	balance, err := l.store.WalletBalance(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.LedgerEntry{}, fmt.Errorf("debit: %w", ErrUserNotFound)
		}
		return models.LedgerEntry{}, fmt.Errorf("debit: reading balance: %w", err)
	}
	if balance-amount < 0 {
		return models.LedgerEntry{}, &InsufficientFundsError{UserID: userID, Balance: balance, Amount: amount}
	}

	entry := models.LedgerEntry{
		ID:               uuid.New().String(),
		UserID:           userID,
		Amount:           -amount,
		Kind:             kind,
		RelatedRequestID: relatedRequestID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := l.store.ApplyEntry(entry); err != nil {
		if errors.Is(err, storage.ErrNegativeBalance) {
			return models.LedgerEntry{}, &InsufficientFundsError{UserID: userID, Balance: balance, Amount: amount}
		}
		return models.LedgerEntry{}, fmt.Errorf("debit: appending entry: %w", err)
	}
	log.Printf("Ledger: debit of %d (%s) applied to user %s, entry %s", amount, kind, userID, entry.ID)
	return entry, nil
}

// Credit adds amount to the user's wallet. amount must be positive.
func (l *Ledger) Credit(userID string, amount int64, kind, relatedRequestID string) (models.LedgerEntry, error) {
	if amount <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("credit of %d: %w", amount, ErrInvalidAmount)
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	entry := models.LedgerEntry{
		ID:               uuid.New().String(),
		UserID:           userID,
		Amount:           amount,
		Kind:             kind,
		RelatedRequestID: relatedRequestID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := l.store.ApplyEntry(entry); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.LedgerEntry{}, fmt.Errorf("credit: %w", ErrUserNotFound)
		}
		return models.LedgerEntry{}, fmt.Errorf("credit: appending entry: %w", err)
	}
	log.Printf("Ledger: credit of %d (%s) applied to user %s, entry %s", amount, kind, userID, entry.ID)
	return entry, nil
}

// BalanceOf returns the user's current wallet balance.
func (l *Ledger) BalanceOf(userID string) (int64, error) {
	balance, err := l.store.WalletBalance(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// HistoryOf returns the user's ledger entries, most recent first.
func (l *Ledger) HistoryOf(userID string) ([]models.LedgerEntry, error) {
	return l.store.EntriesByUser(userID)
}
