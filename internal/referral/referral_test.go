package referral

import (
	"errors"
	"strings"
	"testing"

	"coursio/internal/constants"
	"coursio/internal/ledger"
	"coursio/internal/models"
	"coursio/internal/storage"
)

func newTestGraph(t *testing.T) (*storage.Memory, *Graph) {
	t.Helper()
	store := storage.NewMemory()
	return store, New(store, store, store, ledger.New(store))
}

func addUser(t *testing.T, store *storage.Memory, id, code string) {
	t.Helper()
	err := store.CreateUser(models.User{
		ID:           id,
		Name:         id,
		Email:        id + "@test.local",
		Role:         constants.ROLE_CLIENT,
		Status:       constants.ACCOUNT_STATUS_ACTIVE,
		ReferralCode: code,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", id, err)
	}
}

func TestRegisterPaysBonusExactlyOnce(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "jean", "JEAN2023")
	addUser(t, store, "awa", "AWA4567")

	edge, err := g.Register("awa", "JEAN2023")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if edge.ReferrerID != "jean" || edge.RefereeID != "awa" {
		t.Errorf("edge = %+v, want jean -> awa", edge)
	}
	if edge.BonusEntryID == "" {
		t.Error("edge has no bonus entry id")
	}

	balance, _ := store.WalletBalance("jean")
	if balance != constants.DEFAULT_REFERRAL_BONUS {
		t.Errorf("referrer balance = %d, want %d", balance, constants.DEFAULT_REFERRAL_BONUS)
	}

	jean, _ := store.UserByID("jean")
	if jean.ReferralCount != 1 {
		t.Errorf("referral count = %d, want 1", jean.ReferralCount)
	}

	// A retried registration returns the existing edge without paying again.
	again, err := g.Register("awa", "JEAN2023")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if again.ID != edge.ID {
		t.Errorf("retry returned a new edge %s, want %s", again.ID, edge.ID)
	}
	balance, _ = store.WalletBalance("jean")
	if balance != constants.DEFAULT_REFERRAL_BONUS {
		t.Errorf("referrer balance after retry = %d, want %d", balance, constants.DEFAULT_REFERRAL_BONUS)
	}
}

func TestRegisterUnknownCode(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "awa", "AWA4567")

	if _, err := g.Register("awa", "NOPE9999"); !errors.Is(err, ErrUnknownReferralCode) {
		t.Errorf("err = %v, want ErrUnknownReferralCode", err)
	}
	if _, err := store.ReferralByReferee("awa"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("edge was recorded for an unknown code")
	}
}

func TestRegisterSelfReferral(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "jean", "JEAN2023")

	if _, err := g.Register("jean", "JEAN2023"); !errors.Is(err, ErrSelfReferral) {
		t.Errorf("err = %v, want ErrSelfReferral", err)
	}
	balance, _ := store.WalletBalance("jean")
	if balance != 0 {
		t.Errorf("self referral credited %d", balance)
	}
}

func TestRegisterUnknownUser(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "jean", "JEAN2023")

	if _, err := g.Register("ghost", "JEAN2023"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCodeOwner(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "jean", "JEAN2023")

	owner, err := g.CodeOwner("JEAN2023")
	if err != nil {
		t.Fatalf("CodeOwner: %v", err)
	}
	if owner.ID != "jean" {
		t.Errorf("owner = %s, want jean", owner.ID)
	}
	if _, err := g.CodeOwner("NOPE9999"); !errors.Is(err, ErrUnknownReferralCode) {
		t.Errorf("err = %v, want ErrUnknownReferralCode", err)
	}
}

func TestReferralsOf(t *testing.T) {
	store, g := newTestGraph(t)
	addUser(t, store, "jean", "JEAN2023")
	addUser(t, store, "awa", "AWA1111")
	addUser(t, store, "omar", "OMAR222")

	g.Register("awa", "JEAN2023")
	g.Register("omar", "JEAN2023")

	edges, err := g.ReferralsOf("jean")
	if err != nil {
		t.Fatalf("ReferralsOf: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("got %d edges, want 2", len(edges))
	}
}

func TestGenerateCode(t *testing.T) {
	tests := []struct {
		name       string
		wantPrefix string
	}{
		{"Jean Dupont", "JEAN"},
		{"Awa", "AWA"},
		{"李明", "REF"}, // no latin letters: generic prefix
		{"a b c d e f", "ABCD"},
	}
	for _, tt := range tests {
		code := GenerateCode(tt.name)
		if !strings.HasPrefix(code, tt.wantPrefix) {
			t.Errorf("GenerateCode(%q) = %q, want prefix %q", tt.name, code, tt.wantPrefix)
		}
		if len(code) != len(tt.wantPrefix)+4 {
			t.Errorf("GenerateCode(%q) = %q, want %d characters", tt.name, code, len(tt.wantPrefix)+4)
		}
		for _, r := range code[len(tt.wantPrefix):] {
			if !strings.ContainsRune(codeSuffixAlphabet, r) {
				t.Errorf("GenerateCode(%q) = %q contains %q outside the suffix alphabet", tt.name, code, r)
			}
		}
	}

	// Codes are random: two calls for the same name should differ.
	if GenerateCode("Jean") == GenerateCode("Jean") {
		t.Error("two generated codes collided, suffix does not look random")
	}
}
