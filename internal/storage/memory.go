package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"coursio/internal/constants"
	"coursio/internal/models"
)

// Memory is an in-memory Store used by unit tests and the dev mode. All
// methods are safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]models.User
	entries     map[string][]models.LedgerEntry // userID -> entries, append order
	referrals   map[string]models.Referral      // refereeID -> edge
	requests    map[string]models.ServiceRequest
	withdrawals map[string]models.WithdrawalRequest
	messages    []models.Message
	comments    map[string]models.BlogComment
	activity    []models.ActivityLog
	feeConfig   models.FeeConfig
}

// NewMemory returns an empty in-memory store seeded with the default fee
// configuration.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]models.User),
		entries:     make(map[string][]models.LedgerEntry),
		referrals:   make(map[string]models.Referral),
		requests:    make(map[string]models.ServiceRequest),
		withdrawals: make(map[string]models.WithdrawalRequest),
		comments:    make(map[string]models.BlogComment),
		feeConfig:   DefaultFeeConfig(),
	}
}

// DefaultFeeConfig returns the fee schedule a fresh installation starts with.
func DefaultFeeConfig() models.FeeConfig {
	return models.FeeConfig{
		Prices: map[string]int64{
			constants.SERVICE_ETAT_CIVIL:          constants.DEFAULT_PRICE_ETAT_CIVIL,
			constants.SERVICE_CASIER_JUDICIAIRE:   constants.DEFAULT_PRICE_CASIER_JUDICIAIRE,
			constants.SERVICE_LEGALISATION:        constants.DEFAULT_PRICE_LEGALISATION,
			constants.SERVICE_CREATION_ENTREPRISE: constants.DEFAULT_PRICE_CREATION_ENTREPRISE,
			constants.SERVICE_GESTION_DOSSIER:     constants.DEFAULT_PRICE_GESTION_DOSSIER,
		},
		CommissionAgentPercent: constants.DEFAULT_COMMISSION_AGENT_PERCENT,
		ReferralBonus:          constants.DEFAULT_REFERRAL_BONUS,
		MinWithdrawal:          constants.DEFAULT_MIN_WITHDRAWAL,
		RefundOnReject:         false,
		UpdatedAt:              time.Now(),
	}
}

// --- UserStore ---

func (m *Memory) CreateUser(u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) && existing.Status != constants.ACCOUNT_STATUS_DELETED {
			return ErrConflict
		}
		if u.ReferralCode != "" && existing.ReferralCode == u.ReferralCode {
			return ErrConflict
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) UserByID(id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UserByEmail(email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) && u.Status != constants.ACCOUNT_STATUS_DELETED {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) UserByReferralCode(code string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ReferralCode != "" && u.ReferralCode == code {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) UpdateUser(u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) IncrementReferralCount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ReferralCount++
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return nil
}

func (m *Memory) ListUsers(role string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.User
	for _, u := range m.users {
		if u.Status == constants.ACCOUNT_STATUS_DELETED {
			continue
		}
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- LedgerStore ---

func (m *Memory) ApplyEntry(e models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[e.UserID]
	if !ok {
		return ErrNotFound
	}
	if u.WalletBalance+e.Amount < 0 {
		return ErrNegativeBalance
	}
	u.WalletBalance += e.Amount
	u.UpdatedAt = time.Now()
	m.users[e.UserID] = u
	m.entries[e.UserID] = append(m.entries[e.UserID], e)
	return nil
}

func (m *Memory) WalletBalance(userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return u.WalletBalance, nil
}

func (m *Memory) EntriesByUser(userID string) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.entries[userID]
	out := make([]models.LedgerEntry, len(src))
	// append order is chronological; reverse for most recent first
	for i, e := range src {
		out[len(src)-1-i] = e
	}
	return out, nil
}

func (m *Memory) AllEntries() ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.LedgerEntry
	for _, list := range m.entries {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) EntryByReference(kind, relatedRequestID string) (models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if relatedRequestID == "" {
		return models.LedgerEntry{}, ErrNotFound
	}
	for _, list := range m.entries {
		for _, e := range list {
			if e.Kind == kind && e.RelatedRequestID == relatedRequestID {
				return e, nil
			}
		}
	}
	return models.LedgerEntry{}, ErrNotFound
}

// --- ReferralStore ---

func (m *Memory) CreateReferral(r models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referrals[r.RefereeID]; ok {
		return ErrConflict
	}
	m.referrals[r.RefereeID] = r
	return nil
}

func (m *Memory) UpdateReferral(r models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referrals[r.RefereeID]; !ok {
		return ErrNotFound
	}
	m.referrals[r.RefereeID] = r
	return nil
}

func (m *Memory) ReferralByReferee(refereeID string) (models.Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.referrals[refereeID]
	if !ok {
		return models.Referral{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ReferralsByReferrer(referrerID string) ([]models.Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Referral
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- RequestStore ---

func (m *Memory) CreateRequest(r models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; ok {
		return ErrConflict
	}
	if r.ChargeToken != "" {
		for _, existing := range m.requests {
			if existing.ChargeToken == r.ChargeToken {
				return ErrConflict
			}
		}
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) RequestByID(id string) (models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return models.ServiceRequest{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) UpdateRequest(r models.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now()
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) ChargeTokenUsed(token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if token == "" {
		return false, nil
	}
	for _, r := range m.requests {
		if r.ChargeToken == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) RequestsByClient(clientID string) ([]models.ServiceRequest, error) {
	return m.filterRequests(func(r models.ServiceRequest) bool { return r.ClientID == clientID })
}

func (m *Memory) RequestsByAgent(agentID string) ([]models.ServiceRequest, error) {
	return m.filterRequests(func(r models.ServiceRequest) bool { return r.AssignedAgentID == agentID })
}

func (m *Memory) ListRequests(status string) ([]models.ServiceRequest, error) {
	return m.filterRequests(func(r models.ServiceRequest) bool {
		return status == "" || r.Status == status
	})
}

func (m *Memory) filterRequests(keep func(models.ServiceRequest) bool) ([]models.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ServiceRequest
	for _, r := range m.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- ConfigStore ---

func (m *Memory) FeeConfig() (models.FeeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.feeConfig
	cfg.Prices = make(map[string]int64, len(m.feeConfig.Prices))
	for k, v := range m.feeConfig.Prices {
		cfg.Prices[k] = v
	}
	return cfg, nil
}

func (m *Memory) SaveFeeConfig(c models.FeeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.UpdatedAt = time.Now()
	m.feeConfig = c
	return nil
}

// --- WithdrawalStore ---

func (m *Memory) CreateWithdrawal(w models.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[w.ID]; ok {
		return ErrConflict
	}
	m.withdrawals[w.ID] = w
	return nil
}

func (m *Memory) WithdrawalByID(id string) (models.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return models.WithdrawalRequest{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) UpdateWithdrawal(w models.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[w.ID]; !ok {
		return ErrNotFound
	}
	m.withdrawals[w.ID] = w
	return nil
}

func (m *Memory) WithdrawalsByUser(userID string) ([]models.WithdrawalRequest, error) {
	return m.filterWithdrawals(func(w models.WithdrawalRequest) bool { return w.UserID == userID })
}

func (m *Memory) WithdrawalsByStatus(status string) ([]models.WithdrawalRequest, error) {
	return m.filterWithdrawals(func(w models.WithdrawalRequest) bool {
		return status == "" || w.Status == status
	})
}

func (m *Memory) filterWithdrawals(keep func(models.WithdrawalRequest) bool) ([]models.WithdrawalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WithdrawalRequest
	for _, w := range m.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// --- SupportStore ---

func (m *Memory) CreateMessage(msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) MessagesForUser(userID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.SenderID == userID || (msg.IsAdminResponse && msg.ReceiverRole != constants.ROLE_ADMIN) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AllMessages() ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MarkMessageRead(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id {
			m.messages[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateComment(c models.BlogComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[c.ID]; ok {
		return ErrConflict
	}
	m.comments[c.ID] = c
	return nil
}

func (m *Memory) CommentsByStatus(status string) ([]models.BlogComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BlogComment
	for _, c := range m.comments {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ModerateComment(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	m.comments[id] = c
	return nil
}

func (m *Memory) AppendActivity(a models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, a)
	return nil
}

func (m *Memory) RecentActivity(limit int) ([]models.ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ActivityLog, len(m.activity))
	copy(out, m.activity)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
