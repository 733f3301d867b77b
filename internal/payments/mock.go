package payments

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockGateway is an in-process Gateway used by tests and dev mode. Charges
// succeed immediately and are verifiable by token.
type MockGateway struct {
	mu      sync.Mutex
	charges map[string]ChargeConfirmation
	payouts []PayoutConfirmation
	// FailNext forces the next call to fail, for error-path tests.
	FailNext bool
}

// NewMockGateway returns an empty mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{charges: make(map[string]ChargeConfirmation)}
}

func (m *MockGateway) ChargeDirect(userID string, amount int64, method, phone string) (ChargeConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return ChargeConfirmation{}, ErrChargeFailed
	}
	conf := ChargeConfirmation{
		Token:     uuid.New().String(),
		Amount:    amount,
		Currency:  "XOF",
		Method:    method,
		Paid:      true,
		CreatedAt: time.Now().UTC(),
	}
	m.charges[conf.Token] = conf
	return conf, nil
}

func (m *MockGateway) VerifyCharge(token string) (ChargeConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return ChargeConfirmation{}, ErrChargeFailed
	}
	conf, ok := m.charges[token]
	if !ok || !conf.Paid {
		return ChargeConfirmation{}, fmt.Errorf("charge %s: %w", token, ErrChargeFailed)
	}
	return conf, nil
}

func (m *MockGateway) Payout(userID string, amount int64, method, destination string) (PayoutConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext {
		m.FailNext = false
		return PayoutConfirmation{}, ErrChargeFailed
	}
	conf := PayoutConfirmation{
		Reference: uuid.New().String(),
		Amount:    amount,
		Method:    method,
		CreatedAt: time.Now().UTC(),
	}
	m.payouts = append(m.payouts, conf)
	return conf, nil
}

// Payouts returns the payouts issued so far (test helper).
func (m *MockGateway) Payouts() []PayoutConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PayoutConfirmation, len(m.payouts))
	copy(out, m.payouts)
	return out
}
