package referral

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"coursio/internal/constants"
	"coursio/internal/ledger"
	"coursio/internal/models"
	"coursio/internal/storage"
)

var (
	ErrUnknownReferralCode = errors.New("unknown referral code")
	ErrSelfReferral        = errors.New("self referral")
	ErrUserNotFound        = errors.New("user not found")
)

// Graph validates and records referral linkage at registration time and pays
// the one-time referrer bonus.
type Graph struct {
	users  storage.UserStore
	edges  storage.ReferralStore
	config storage.ConfigStore
	ledger *ledger.Ledger
}

// New returns a referral graph over the given stores.
func New(users storage.UserStore, edges storage.ReferralStore, config storage.ConfigStore, l *ledger.Ledger) *Graph {
	return &Graph{users: users, edges: edges, config: config, ledger: l}
}

// Register links newUserID to the owner of suppliedCode and credits the
// referrer the configured bonus exactly once. Calling Register again for the
// same newUserID is a no-op returning the existing edge, so a retried
// registration handler can never double-credit.
func (g *Graph) Register(newUserID, suppliedCode string) (models.Referral, error) {
	referee, err := g.users.UserByID(newUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Referral{}, ErrUserNotFound
		}
		return models.Referral{}, fmt.Errorf("referral register: %w", err)
	}

	// Retried registration for an already linked referee.
	if existing, err := g.edges.ReferralByReferee(newUserID); err == nil {
		return existing, nil
	}

	referrer, err := g.users.UserByReferralCode(suppliedCode)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Referral{}, fmt.Errorf("code %q: %w", suppliedCode, ErrUnknownReferralCode)
		}
		return models.Referral{}, fmt.Errorf("referral register: %w", err)
	}
	if referrer.ID == referee.ID {
		return models.Referral{}, ErrSelfReferral
	}

	edge := models.Referral{
		ID:         uuid.New().String(),
		ReferrerID: referrer.ID,
		RefereeID:  referee.ID,
		Code:       suppliedCode,
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.edges.CreateReferral(edge); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost a race with a concurrent registration of the same user.
			existing, lookupErr := g.edges.ReferralByReferee(newUserID)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return models.Referral{}, fmt.Errorf("referral register: recording edge: %w", err)
	}

	cfg, err := g.config.FeeConfig()
	if err != nil {
		return edge, fmt.Errorf("referral register: reading config: %w", err)
	}
	if cfg.ReferralBonus > 0 {
		entry, err := g.ledger.Credit(referrer.ID, cfg.ReferralBonus, constants.LEDGER_KIND_REFERRAL_BONUS, "")
		if err != nil {
			return edge, fmt.Errorf("referral register: crediting bonus: %w", err)
		}
		edge.BonusEntryID = entry.ID
		if err := g.edges.UpdateReferral(edge); err != nil {
			log.Printf("Register: edge %s: recording bonus entry id: %v", edge.ID, err)
		}
	}
	if err := g.users.IncrementReferralCount(referrer.ID); err != nil {
		log.Printf("Register: incrementing referral count for %s: %v", referrer.ID, err)
	}

	log.Printf("Referral recorded: %s referred %s with code %s", referrer.ID, referee.ID, suppliedCode)
	return edge, nil
}

// CodeOwner returns the user owning the given referral code.
func (g *Graph) CodeOwner(code string) (models.User, error) {
	u, err := g.users.UserByReferralCode(code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrUnknownReferralCode
		}
		return models.User{}, err
	}
	return u, nil
}

// ReferralsOf returns the edges recorded for a referrer, most recent first.
func (g *Graph) ReferralsOf(referrerID string) ([]models.Referral, error) {
	return g.edges.ReferralsByReferrer(referrerID)
}

const codeSuffixAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ" // no 0/O, 1/I/L

// GenerateCode builds a short, human-typeable referral code from the user's
// name plus a random suffix, e.g. "JEAN7K2M". Uniqueness is enforced by the
// user store; callers retry on conflict.
func GenerateCode(name string) string {
	prefix := strings.Builder{}
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			prefix.WriteRune(r)
			if prefix.Len() >= 4 {
				break
			}
		}
	}
	if prefix.Len() == 0 {
		prefix.WriteString("REF")
	}

	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failing is not survivable in any meaningful way;
		// fall back to a uuid fragment rather than panic.
		return prefix.String() + strings.ToUpper(uuid.New().String()[:4])
	}
	for i, b := range suffix {
		suffix[i] = codeSuffixAlphabet[int(b)%len(codeSuffixAlphabet)]
	}
	return prefix.String() + string(suffix)
}
