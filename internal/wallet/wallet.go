package wallet

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"coursio/internal/constants"
	"coursio/internal/ledger"
	"coursio/internal/models"
	"coursio/internal/notify"
	"coursio/internal/payments"
	"coursio/internal/storage"
	"coursio/internal/utils"
)

var (
	ErrBelowMinimum       = errors.New("amount below minimum withdrawal")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
	ErrNotPending         = errors.New("withdrawal request already processed")
)

// Service handles wallet recharges and the withdrawal request lifecycle.
// Recharges credit only against a gateway-verified, single-use confirmation
// token; withdrawals debit only when an admin approves the request, and the
// external payout happens after the debit has reserved the funds.
type Service struct {
	ledgerStore storage.LedgerStore
	withdrawals storage.WithdrawalStore
	config      storage.ConfigStore
	ledger      *ledger.Ledger
	gateway     payments.Gateway
	notifier    notify.Notifier
	locks       *withdrawalLocks
}

// New wires the wallet service.
func New(ledgerStore storage.LedgerStore, withdrawals storage.WithdrawalStore, config storage.ConfigStore,
	l *ledger.Ledger, gateway payments.Gateway, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		ledgerStore: ledgerStore,
		withdrawals: withdrawals,
		config:      config,
		ledger:      l,
		gateway:     gateway,
		notifier:    notifier,
		locks:       newWithdrawalLocks(),
	}
}

// Recharge credits the wallet after verifying the charge token with the
// gateway. A token can fund at most one recharge: replaying it returns the
// entry the first call produced, with the balance unchanged.
func (s *Service) Recharge(userID, chargeToken string) (models.LedgerEntry, error) {
	conf, err := s.gateway.VerifyCharge(chargeToken)
	if err != nil {
		return models.LedgerEntry{}, err
	}

	existing, err := s.ledgerStore.EntryByReference(constants.LEDGER_KIND_WALLET_RECHARGE, conf.Token)
	if err == nil {
		log.Printf("Recharge: token %s already consumed, skipping credit for user %s", conf.Token, userID)
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.LedgerEntry{}, fmt.Errorf("recharge: checking token reuse: %w", err)
	}

	entry, err := s.ledger.Credit(userID, conf.Amount, constants.LEDGER_KIND_WALLET_RECHARGE, conf.Token)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	return entry, nil
}

// RequestWithdrawal records a pending withdrawal of wallet funds to a
// mobile-money destination. The balance is only reserved at approval time;
// this call checks the minimum and that the funds exist right now.
func (s *Service) RequestWithdrawal(userID string, amount int64, method, destination string) (models.WithdrawalRequest, error) {
	cfg, err := s.config.FeeConfig()
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: reading config: %w", err)
	}
	if amount < cfg.MinWithdrawal {
		return models.WithdrawalRequest{}, fmt.Errorf("requested %d, minimum %d: %w", amount, cfg.MinWithdrawal, ErrBelowMinimum)
	}

	balance, err := s.ledger.BalanceOf(userID)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	if balance < amount {
		return models.WithdrawalRequest{}, &ledger.InsufficientFundsError{UserID: userID, Balance: balance, Amount: amount}
	}

	encrypted, err := utils.EncryptSecret(destination)
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: encrypting destination: %w", err)
	}

	w := models.WithdrawalRequest{
		ID:                   uuid.New().String(),
		UserID:               userID,
		Amount:               amount,
		Method:               method,
		DestinationEncrypted: encrypted,
		Status:               constants.WITHDRAWAL_STATUS_PENDING,
		RequestedAt:          time.Now().UTC(),
	}
	if err := s.withdrawals.CreateWithdrawal(w); err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal: persisting request: %w", err)
	}

	s.notifier.Notify(notify.Event{
		Kind:   "withdrawal.requested",
		UserID: userID,
		Text:   fmt.Sprintf("Demande de retrait de %d FCFA via %s", amount, method),
	})
	log.Printf("Withdrawal %s requested: %d FCFA for user %s via %s", w.ID, amount, userID, method)
	return w, nil
}

// Approve debits the wallet and pushes the payout through the gateway. The
// debit reserves the funds first; a failed payout puts the money back and
// leaves the request pending for a retry.
func (s *Service) Approve(withdrawalID, adminComment string) (models.WithdrawalRequest, error) {
	unlock := s.locks.lock(withdrawalID)
	defer unlock()

	w, err := s.loadPending(withdrawalID)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	destination, err := utils.DecryptSecret(w.DestinationEncrypted)
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("approve withdrawal: decrypting destination: %w", err)
	}

	entry, err := s.ledger.Debit(w.UserID, w.Amount, constants.LEDGER_KIND_WITHDRAWAL, w.ID)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	if _, err := s.gateway.Payout(w.UserID, w.Amount, w.Method, destination); err != nil {
		if _, creditErr := s.ledger.Credit(w.UserID, w.Amount, constants.LEDGER_KIND_REFUND, w.ID); creditErr != nil {
			log.Printf("Approve: CRITICAL: payout failed and refund failed for withdrawal %s: %v", w.ID, creditErr)
		}
		return models.WithdrawalRequest{}, fmt.Errorf("approve withdrawal %s: %w", w.ID, err)
	}

	now := time.Now().UTC()
	w.Status = constants.WITHDRAWAL_STATUS_COMPLETED
	w.AdminComment = nullString(adminComment)
	w.LedgerEntryID = nullString(entry.ID)
	w.ProcessedAt.Time, w.ProcessedAt.Valid = now, true
	if err := s.withdrawals.UpdateWithdrawal(w); err != nil {
		log.Printf("Approve: withdrawal %s paid but status update failed: %v", w.ID, err)
		return models.WithdrawalRequest{}, fmt.Errorf("approve withdrawal: persisting status: %w", err)
	}

	s.notifier.Notify(notify.Event{
		Kind:   "withdrawal.completed",
		UserID: w.UserID,
		Text:   fmt.Sprintf("Retrait de %d FCFA effectué", w.Amount),
	})
	return w, nil
}

// Reject declines a pending withdrawal. No balance change: the funds were
// never reserved.
func (s *Service) Reject(withdrawalID, adminComment string) (models.WithdrawalRequest, error) {
	unlock := s.locks.lock(withdrawalID)
	defer unlock()

	w, err := s.loadPending(withdrawalID)
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	now := time.Now().UTC()
	w.Status = constants.WITHDRAWAL_STATUS_REJECTED
	w.AdminComment = nullString(adminComment)
	w.ProcessedAt.Time, w.ProcessedAt.Valid = now, true
	if err := s.withdrawals.UpdateWithdrawal(w); err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("reject withdrawal: %w", err)
	}

	s.notifier.Notify(notify.Event{
		Kind:   "withdrawal.rejected",
		UserID: w.UserID,
		Text:   fmt.Sprintf("Retrait de %d FCFA refusé: %s", w.Amount, adminComment),
	})
	return w, nil
}

// WithdrawalsOf returns a user's withdrawal requests, most recent first.
func (s *Service) WithdrawalsOf(userID string) ([]models.WithdrawalRequest, error) {
	return s.withdrawals.WithdrawalsByUser(userID)
}

// Pending returns all withdrawal requests awaiting an admin decision.
func (s *Service) Pending() ([]models.WithdrawalRequest, error) {
	return s.withdrawals.WithdrawalsByStatus(constants.WITHDRAWAL_STATUS_PENDING)
}

func (s *Service) loadPending(withdrawalID string) (models.WithdrawalRequest, error) {
	w, err := s.withdrawals.WithdrawalByID(withdrawalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.WithdrawalRequest{}, ErrWithdrawalNotFound
		}
		return models.WithdrawalRequest{}, err
	}
	if w.Status != constants.WITHDRAWAL_STATUS_PENDING {
		return models.WithdrawalRequest{}, fmt.Errorf("withdrawal %s is %s: %w", w.ID, w.Status, ErrNotPending)
	}
	return w, nil
}

func nullString(s string) (ns sql.NullString) {
	if s != "" {
		ns.String, ns.Valid = s, true
	}
	return ns
}
