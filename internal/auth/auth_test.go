package auth

import (
	"errors"
	"testing"

	"coursio/internal/constants"
	"coursio/internal/ledger"
	"coursio/internal/lifecycle"
	"coursio/internal/payments"
	"coursio/internal/referral"
	"coursio/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	l := ledger.New(store)
	graph := referral.New(store, store, store, l)
	engine := lifecycle.New(store, store, store, l, payments.NewMockGateway(), nil)
	return New(store, store, graph, engine), store
}

func TestRegisterClientAndLogin(t *testing.T) {
	s, _ := newTestService(t)

	u, err := s.RegisterClient(RegisterClientInput{
		Name: "Awa Diop", Email: "Awa@Example.COM", Phone: "+221771234567", Password: "motdepasse",
	})
	if err != nil {
		t.Fatalf("RegisterClient: %v", err)
	}
	if u.Email != "awa@example.com" {
		t.Errorf("email = %q, want lowercased awa@example.com", u.Email)
	}
	if u.Role != constants.ROLE_CLIENT || u.Status != constants.ACCOUNT_STATUS_ACTIVE {
		t.Errorf("role/status = %s/%s", u.Role, u.Status)
	}
	if u.ReferralCode == "" {
		t.Error("client has no referral code")
	}
	if u.CredentialHash == "motdepasse" {
		t.Error("credential stored in clear")
	}

	got, err := s.VerifyCredential("awa@example.com", "motdepasse")
	if err != nil {
		t.Fatalf("VerifyCredential: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("logged in as %s, want %s", got.ID, u.ID)
	}

	if _, err := s.VerifyCredential("awa@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := s.VerifyCredential("nobody@example.com", "motdepasse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterClientDuplicateEmail(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.RegisterClient(RegisterClientInput{Name: "Awa", Email: "awa@example.com", Password: "motdepasse"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	_, err := s.RegisterClient(RegisterClientInput{Name: "Awa Bis", Email: "AWA@example.com", Password: "autremdp"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterClientWithSponsor(t *testing.T) {
	s, store := newTestService(t)

	sponsor, err := s.RegisterClient(RegisterClientInput{Name: "Jean", Email: "jean@example.com", Password: "motdepasse"})
	if err != nil {
		t.Fatalf("sponsor registration: %v", err)
	}

	referee, err := s.RegisterClient(RegisterClientInput{
		Name: "Awa", Email: "awa@example.com", Password: "motdepasse",
		ReferralCode: sponsor.ReferralCode,
	})
	if err != nil {
		t.Fatalf("referee registration: %v", err)
	}
	if referee.ReferredBy != sponsor.ReferralCode {
		t.Errorf("ReferredBy = %q, want %q", referee.ReferredBy, sponsor.ReferralCode)
	}

	balance, _ := store.WalletBalance(sponsor.ID)
	if balance != constants.DEFAULT_REFERRAL_BONUS {
		t.Errorf("sponsor balance = %d, want bonus %d", balance, constants.DEFAULT_REFERRAL_BONUS)
	}
	fresh, _ := store.UserByID(sponsor.ID)
	if fresh.ReferralCount != 1 {
		t.Errorf("sponsor referral count = %d, want 1", fresh.ReferralCount)
	}
}

func TestRegisterClientUnknownSponsorCode(t *testing.T) {
	s, store := newTestService(t)

	_, err := s.RegisterClient(RegisterClientInput{
		Name: "Awa", Email: "awa@example.com", Password: "motdepasse",
		ReferralCode: "NOPE1234",
	})
	if !errors.Is(err, referral.ErrUnknownReferralCode) {
		t.Fatalf("err = %v, want ErrUnknownReferralCode", err)
	}
	// The failed registration must not leave an account behind.
	if _, err := store.UserByEmail("awa@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("account was created despite the invalid sponsor code")
	}
}

func TestAgentApplicationNeedsApproval(t *testing.T) {
	s, _ := newTestService(t)

	agent, err := s.RegisterAgentApplication("Moussa", "moussa@example.com", "+221770000000", "motdepasse", "Dakar")
	if err != nil {
		t.Fatalf("RegisterAgentApplication: %v", err)
	}
	if agent.Status != constants.ACCOUNT_STATUS_PENDING_APPROVAL {
		t.Errorf("status = %s, want PENDING_APPROVAL", agent.Status)
	}

	if _, err := s.VerifyCredential("moussa@example.com", "motdepasse"); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("pre-approval login: err = %v, want ErrAccountNotActive", err)
	}

	if _, err := s.ApproveAccount(agent.ID); err != nil {
		t.Fatalf("ApproveAccount: %v", err)
	}
	got, err := s.VerifyCredential("moussa@example.com", "motdepasse")
	if err != nil {
		t.Fatalf("post-approval login: %v", err)
	}
	if got.Status != constants.ACCOUNT_STATUS_ACTIVE {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}

	// Approving an already active account is a no-op.
	if _, err := s.ApproveAccount(agent.ID); err != nil {
		t.Errorf("re-approval: %v", err)
	}
}

func TestSetRole(t *testing.T) {
	s, _ := newTestService(t)
	u, _ := s.RegisterClient(RegisterClientInput{Name: "Awa", Email: "awa@example.com", Password: "motdepasse"})

	promoted, err := s.SetRole(u.ID, constants.ROLE_ADMIN)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if promoted.Role != constants.ROLE_ADMIN {
		t.Errorf("role = %s, want ADMIN", promoted.Role)
	}

	if _, err := s.SetRole(u.ID, "SUPERUSER"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("err = %v, want ErrInvalidRole", err)
	}
	if _, err := s.SetRole("ghost", constants.ROLE_AGENT); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestDeleteUserAnonymizesAndRejectsOpenRequests(t *testing.T) {
	s, store := newTestService(t)
	l := ledger.New(store)
	engine := lifecycle.New(store, store, store, l, payments.NewMockGateway(), nil)

	u, _ := s.RegisterClient(RegisterClientInput{Name: "Awa", Email: "awa@example.com", Password: "motdepasse"})
	if _, err := l.Credit(u.ID, 10000, constants.LEDGER_KIND_WALLET_RECHARGE, "seed"); err != nil {
		t.Fatal(err)
	}
	open, err := engine.Submit(lifecycle.SubmitInput{
		ClientID: u.ID, Type: constants.SERVICE_ETAT_CIVIL, PaymentMethod: constants.PAYMENT_METHOD_WALLET,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	closed, err := engine.Submit(lifecycle.SubmitInput{
		ClientID: u.ID, Type: constants.SERVICE_ETAT_CIVIL, PaymentMethod: constants.PAYMENT_METHOD_WALLET,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := engine.Close(closed.ID, "doc", false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.DeleteUser(u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	gone, _ := store.UserByID(u.ID)
	if gone.Status != constants.ACCOUNT_STATUS_DELETED {
		t.Errorf("status = %s, want DELETED", gone.Status)
	}
	if gone.Name != "Utilisateur supprimé" || gone.Phone != "" || gone.CredentialHash != "" {
		t.Errorf("account not anonymized: %+v", gone)
	}

	rejected, _ := store.RequestByID(open.ID)
	if rejected.Status != constants.REQUEST_STATUS_REJECTED {
		t.Errorf("open request status = %s, want REJECTED", rejected.Status)
	}
	untouched, _ := store.RequestByID(closed.ID)
	if untouched.Status != constants.REQUEST_STATUS_VALIDATED {
		t.Errorf("terminal request status = %s, want VALIDATED untouched", untouched.Status)
	}

	// The journal keeps its history.
	entries, _ := store.EntriesByUser(u.ID)
	if len(entries) == 0 {
		t.Error("ledger history of the deleted user was erased")
	}

	if _, err := s.VerifyCredential("awa@example.com", "motdepasse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("deleted account login: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestDeleteUnknownUser(t *testing.T) {
	s, _ := newTestService(t)
	if err := s.DeleteUser("ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}
