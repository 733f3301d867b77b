package auth

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"coursio/internal/constants"
	"coursio/internal/lifecycle"
	"coursio/internal/models"
	"coursio/internal/referral"
	"coursio/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account not active")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidRole        = errors.New("invalid role")
)

// Service is the identity collaborator: it verifies credentials, creates
// accounts and manages roles. Referral linkage at registration goes through
// the referral graph; pending requests of a deleted user are rejected
// through the lifecycle engine.
type Service struct {
	users    storage.UserStore
	requests storage.RequestStore
	graph    *referral.Graph
	engine   *lifecycle.Engine
}

// New wires the identity service.
func New(users storage.UserStore, requests storage.RequestStore, graph *referral.Graph, engine *lifecycle.Engine) *Service {
	return &Service{users: users, requests: requests, graph: graph, engine: engine}
}

// VerifyCredential checks an email/password pair and returns the user.
// Wrong email and wrong password are indistinguishable to the caller.
// Accounts pending approval or deleted cannot authenticate.
func (s *Service) VerifyCredential(email, password string) (models.User, error) {
	u, err := s.users.UserByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("verify credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.CredentialHash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}
	if u.Status != constants.ACCOUNT_STATUS_ACTIVE {
		return models.User{}, fmt.Errorf("account %s is %s: %w", u.ID, u.Status, ErrAccountNotActive)
	}
	return u, nil
}

// RegisterClientInput carries a client self-registration.
type RegisterClientInput struct {
	Name         string
	Email        string
	Phone        string
	Password     string
	ReferralCode string // sponsor's code, optional
}

// RegisterClient creates a client account with a fresh referral code and,
// when a sponsor code was supplied, records the referral edge and pays the
// sponsor bonus. An invalid sponsor code fails the whole registration before
// any record is written.
func (s *Service) RegisterClient(in RegisterClientInput) (models.User, error) {
	if in.ReferralCode != "" {
		if _, err := s.graph.CodeOwner(in.ReferralCode); err != nil {
			return models.User{}, err
		}
	}

	u, err := s.createUser(in.Name, in.Email, in.Phone, in.Password, constants.ROLE_CLIENT, "", constants.ACCOUNT_STATUS_ACTIVE)
	if err != nil {
		return models.User{}, err
	}

	if in.ReferralCode != "" {
		if _, err := s.graph.Register(u.ID, in.ReferralCode); err != nil {
			// The account exists; the link failed. Surface the error, the
			// handler may retry Register idempotently.
			return u, fmt.Errorf("register client: linking referral: %w", err)
		}
		u.ReferredBy = in.ReferralCode
		if err := s.users.UpdateUser(u); err != nil {
			log.Printf("RegisterClient: recording referred_by for %s: %v", u.ID, err)
		}
	}
	log.Printf("Client %s registered (%s), referral code %s", u.ID, u.Email, u.ReferralCode)
	return u, nil
}

// RegisterAgentApplication creates an agent account pending admin approval.
func (s *Service) RegisterAgentApplication(name, email, phone, password, zone string) (models.User, error) {
	u, err := s.createUser(name, email, phone, password, constants.ROLE_AGENT, zone, constants.ACCOUNT_STATUS_PENDING_APPROVAL)
	if err != nil {
		return models.User{}, err
	}
	log.Printf("Agent application %s recorded for zone %q, pending approval", u.ID, zone)
	return u, nil
}

// RegisterPartnerApplication creates a partner account pending admin approval.
func (s *Service) RegisterPartnerApplication(companyName, email, phone, password, details string) (models.User, error) {
	u, err := s.createUser(companyName, email, phone, password, constants.ROLE_PARTNER, details, constants.ACCOUNT_STATUS_PENDING_APPROVAL)
	if err != nil {
		return models.User{}, err
	}
	log.Printf("Partner application %s recorded, pending approval", u.ID)
	return u, nil
}

// ApproveAccount activates an agent or partner application.
func (s *Service) ApproveAccount(userID string) (models.User, error) {
	u, err := s.users.UserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	if u.Status == constants.ACCOUNT_STATUS_ACTIVE {
		return u, nil
	}
	u.Status = constants.ACCOUNT_STATUS_ACTIVE
	if err := s.users.UpdateUser(u); err != nil {
		return models.User{}, fmt.Errorf("approve account: %w", err)
	}
	log.Printf("Account %s (%s) approved", u.ID, u.Role)
	return u, nil
}

// SetRole changes a user's role. Admin-only at the boundary.
func (s *Service) SetRole(userID, role string) (models.User, error) {
	if !constants.IsValidRole(role) {
		return models.User{}, fmt.Errorf("role %q: %w", role, ErrInvalidRole)
	}
	u, err := s.users.UserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	u.Role = role
	if err := s.users.UpdateUser(u); err != nil {
		return models.User{}, fmt.Errorf("set role: %w", err)
	}
	return u, nil
}

// DeleteUser anonymizes the account and rejects its open requests. Ledger
// entries stay untouched: the journal is append-only and the anonymized user
// record keeps the historical balance consistent.
func (s *Service) DeleteUser(userID string) error {
	u, err := s.users.UserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	open, err := s.requests.RequestsByClient(userID)
	if err != nil {
		return fmt.Errorf("delete user: listing requests: %w", err)
	}
	for _, req := range open {
		if constants.IsTerminalRequestStatus(req.Status) {
			continue
		}
		if _, err := s.engine.Reject(req.ID, "compte client supprimé"); err != nil {
			log.Printf("DeleteUser: rejecting request %s: %v", req.ID, err)
		}
	}

	u.Name = "Utilisateur supprimé"
	u.Email = "deleted+" + u.ID + "@invalid"
	u.Phone = ""
	u.CredentialHash = ""
	u.Status = constants.ACCOUNT_STATUS_DELETED
	if err := s.users.UpdateUser(u); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	log.Printf("User %s anonymized and deleted", userID)
	return nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(userID string) (models.User, error) {
	u, err := s.users.UserByID(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *Service) createUser(name, email, phone, password, role, zone, status string) (models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" || name == "" {
		return models.User{}, fmt.Errorf("name, email and password are required: %w", ErrInvalidCredentials)
	}
	if _, err := s.users.UserByEmail(email); err == nil {
		return models.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hashing credential: %w", err)
	}

	now := time.Now().UTC()
	u := models.User{
		ID:             uuid.New().String(),
		Name:           name,
		Email:          email,
		Phone:          phone,
		Role:           role,
		Status:         status,
		CredentialHash: string(hash),
		Zone:           zone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if role == constants.ROLE_CLIENT {
		u.ReferralCode = referral.GenerateCode(name)
	}

	// Referral codes are random; on the rare collision regenerate and retry.
	for attempt := 0; ; attempt++ {
		err := s.users.CreateUser(u)
		if err == nil {
			return u, nil
		}
		if errors.Is(err, storage.ErrConflict) && role == constants.ROLE_CLIENT && attempt < 3 {
			if _, emailErr := s.users.UserByEmail(email); emailErr == nil {
				return models.User{}, ErrEmailTaken
			}
			u.ReferralCode = referral.GenerateCode(name)
			continue
		}
		if errors.Is(err, storage.ErrConflict) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}
}
