package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"coursio/internal/auth"
	"coursio/internal/config"
	"coursio/internal/constants"
	"coursio/internal/ledger"
	"coursio/internal/lifecycle"
	"coursio/internal/models"
	"coursio/internal/payments"
	"coursio/internal/referral"
	"coursio/internal/storage"
	"coursio/internal/utils"
	"coursio/internal/wallet"
)

func init() {
	utils.SetEncryptionKeyForTest(bytes.Repeat([]byte{0x42}, 32))
}

type apiRig struct {
	router  *chi.Mux
	server  *Server
	store   *storage.Memory
	ledger  *ledger.Ledger
	gateway *payments.MockGateway
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	store := storage.NewMemory()
	l := ledger.New(store)
	graph := referral.New(store, store, store, l)
	gateway := payments.NewMockGateway()
	engine := lifecycle.New(store, store, store, l, gateway, nil)
	s := &Server{
		Config: &config.Config{
			SessionSecret: "test-secret",
			Port:          "8080",
			AppBaseURL:    "http://localhost:8080",
		},
		Store:  store,
		Auth:   auth.New(store, store, graph, engine),
		Engine: engine,
		Ledger: l,
		Graph:  graph,
		Wallet: wallet.New(store, store, store, l, gateway, nil),
	}
	r := chi.NewRouter()
	SetupRoutes(r, s)
	return &apiRig{router: r, server: s, store: store, ledger: l, gateway: gateway}
}

func (rig *apiRig) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	rig.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) jsonResponse {
	t.Helper()
	raw := struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decoding envelope from %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("decoding data: %v", err)
		}
	}
	return jsonResponse{Status: raw.Status, Message: raw.Message}
}

// registerClient registers through the API and returns the session token and
// the created user.
func (rig *apiRig) registerClient(t *testing.T, name, email string) (string, models.User) {
	t.Helper()
	rec := rig.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": name, "email": email, "password": "motdepasse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: status %d, body %s", email, rec.Code, rec.Body.String())
	}
	var data struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decodeEnvelope(t, rec, &data)
	if data.Token == "" {
		t.Fatal("registration returned no token")
	}
	return data.Token, data.User
}

// addAdmin creates an admin directly in the store and issues a token for it.
func (rig *apiRig) addAdmin(t *testing.T, id string) string {
	t.Helper()
	err := rig.store.CreateUser(models.User{
		ID: id, Name: id, Email: id + "@test.local",
		Role: constants.ROLE_ADMIN, Status: constants.ACCOUNT_STATUS_ACTIVE,
	})
	if err != nil {
		t.Fatal(err)
	}
	return IssueSessionToken(rig.server.Config.SessionSecret, id, sessionTTL)
}

func TestRegisterLoginProfile(t *testing.T) {
	rig := newAPIRig(t)

	token, user := rig.registerClient(t, "Awa Diop", "awa@example.com")
	if user.Role != constants.ROLE_CLIENT {
		t.Errorf("role = %s, want CLIENT", user.Role)
	}
	if user.CredentialHash != "" {
		t.Error("credential hash leaked in the registration response")
	}

	rec := rig.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "awa@example.com", "password": "motdepasse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d", rec.Code)
	}

	rec = rig.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "awa@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", rec.Code)
	}

	rec = rig.do(t, http.MethodGet, "/api/user/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: status %d", rec.Code)
	}
	var profile models.User
	decodeEnvelope(t, rec, &profile)
	if profile.ID != user.ID {
		t.Errorf("profile id = %s, want %s", profile.ID, user.ID)
	}

	// Registration lands in the audit trail.
	activity, _ := rig.store.RecentActivity(0)
	var registered bool
	for _, a := range activity {
		if a.UserID == user.ID && a.Action == constants.ACTIVITY_REGISTER {
			registered = true
		}
	}
	if !registered {
		t.Error("no REGISTER activity recorded for the new account")
	}

	if rec := rig.do(t, http.MethodGet, "/api/user/profile", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}
	if rec := rig.do(t, http.MethodGet, "/api/user/profile", "garbage.token", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	rig := newAPIRig(t)

	cases := []map[string]string{
		{"name": "Awa", "email": "not-an-email", "password": "motdepasse"},
		{"name": "Awa", "email": "awa@example.com", "password": "court"},
		{"name": "Awa", "email": "awa@example.com", "password": "motdepasse", "phone": "123"},
	}
	for i, body := range cases {
		if rec := rig.do(t, http.MethodPost, "/api/register", "", body); rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: status %d, want 400", i, rec.Code)
		}
	}

	rig.registerClient(t, "Awa", "awa@example.com")
	rec := rig.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Awa Bis", "email": "awa@example.com", "password": "motdepasse",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate email: status %d, want 409", rec.Code)
	}
}

func TestSubmitRequestWithWallet(t *testing.T) {
	rig := newAPIRig(t)
	token, user := rig.registerClient(t, "Awa", "awa@example.com")
	if _, err := rig.ledger.Credit(user.ID, 10000, constants.LEDGER_KIND_WALLET_RECHARGE, "seed"); err != nil {
		t.Fatal(err)
	}

	rec := rig.do(t, http.MethodPost, "/api/user/requests", token, map[string]string{
		"type":           constants.SERVICE_ETAT_CIVIL,
		"details":        "extrait de naissance",
		"payment_method": constants.PAYMENT_METHOD_WALLET,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d, body %s", rec.Code, rec.Body.String())
	}
	var created models.ServiceRequest
	decodeEnvelope(t, rec, &created)
	if created.Status != constants.REQUEST_STATUS_PENDING {
		t.Errorf("status = %s, want PENDING", created.Status)
	}

	rec = rig.do(t, http.MethodGet, "/api/user/requests", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var mine []models.ServiceRequest
	decodeEnvelope(t, rec, &mine)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Errorf("my requests = %+v", mine)
	}
}

func TestSubmitRequestInsufficientFunds(t *testing.T) {
	rig := newAPIRig(t)
	token, _ := rig.registerClient(t, "Awa", "awa@example.com")

	rec := rig.do(t, http.MethodPost, "/api/user/requests", token, map[string]string{
		"type":           constants.SERVICE_ETAT_CIVIL,
		"payment_method": constants.PAYMENT_METHOD_WALLET,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402, body %s", rec.Code, rec.Body.String())
	}
}

func TestRoleEnforcement(t *testing.T) {
	rig := newAPIRig(t)
	clientToken, _ := rig.registerClient(t, "Awa", "awa@example.com")
	adminToken := rig.addAdmin(t, "admin")

	if rec := rig.do(t, http.MethodGet, "/api/admin/users", clientToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("client on admin route: status %d, want 403", rec.Code)
	}
	if rec := rig.do(t, http.MethodGet, "/api/agent/requests", clientToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("client on agent route: status %d, want 403", rec.Code)
	}
	if rec := rig.do(t, http.MethodGet, "/api/admin/users", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("admin on admin route: status %d, want 200", rec.Code)
	}
	// Admins pass role gates everywhere.
	if rec := rig.do(t, http.MethodGet, "/api/agent/requests", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("admin on agent route: status %d, want 200", rec.Code)
	}
}

func TestAgentLifecycleOverAPI(t *testing.T) {
	rig := newAPIRig(t)
	clientToken, client := rig.registerClient(t, "Awa", "awa@example.com")
	adminToken := rig.addAdmin(t, "admin")
	if _, err := rig.ledger.Credit(client.ID, 10000, constants.LEDGER_KIND_WALLET_RECHARGE, "seed"); err != nil {
		t.Fatal(err)
	}

	// Agent applies and is approved.
	rec := rig.do(t, http.MethodPost, "/api/register/agent", "", map[string]string{
		"name": "Moussa", "email": "moussa@example.com", "password": "motdepasse", "zone": "Abidjan",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("agent application: status %d", rec.Code)
	}
	var agent models.User
	decodeEnvelope(t, rec, &agent)
	if rec := rig.do(t, http.MethodPost, "/api/admin/user/"+agent.ID+"/approve", adminToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("approve agent: status %d", rec.Code)
	}
	agentToken := IssueSessionToken(rig.server.Config.SessionSecret, agent.ID, sessionTTL)

	// Client submits, admin assigns, agent works it to completion.
	rec = rig.do(t, http.MethodPost, "/api/user/requests", clientToken, map[string]string{
		"type":           constants.SERVICE_CASIER_JUDICIAIRE,
		"payment_method": constants.PAYMENT_METHOD_WALLET,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d", rec.Code)
	}
	var created models.ServiceRequest
	decodeEnvelope(t, rec, &created)

	rec = rig.do(t, http.MethodPost, "/api/admin/request/"+created.ID+"/assign", adminToken, map[string]string{
		"agent_id": agent.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: status %d, body %s", rec.Code, rec.Body.String())
	}

	if rec := rig.do(t, http.MethodPost, "/api/agent/request/"+created.ID+"/start", agentToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("start: status %d, body %s", rec.Code, rec.Body.String())
	}
	rec = rig.do(t, http.MethodPost, "/api/agent/request/"+created.ID+"/close", agentToken, map[string]interface{}{
		"final_document": "doc-ref-9",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d, body %s", rec.Code, rec.Body.String())
	}

	final, _ := rig.store.RequestByID(created.ID)
	if final.Status != constants.REQUEST_STATUS_VALIDATED {
		t.Errorf("status = %s, want VALIDATED", final.Status)
	}
	commission, _ := rig.store.WalletBalance(agent.ID)
	want := int64(constants.DEFAULT_PRICE_CASIER_JUDICIAIRE) * constants.DEFAULT_COMMISSION_AGENT_PERCENT / 100
	if commission != want {
		t.Errorf("agent commission = %d, want %d", commission, want)
	}

	// Closing again conflicts.
	rec = rig.do(t, http.MethodPost, "/api/agent/request/"+created.ID+"/close", agentToken, map[string]interface{}{
		"final_document": "doc-ref-10",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second close: status %d, want 409", rec.Code)
	}
}

func TestAgentCannotTouchForeignRequest(t *testing.T) {
	rig := newAPIRig(t)
	clientToken, client := rig.registerClient(t, "Awa", "awa@example.com")
	if _, err := rig.ledger.Credit(client.ID, 10000, constants.LEDGER_KIND_WALLET_RECHARGE, "seed"); err != nil {
		t.Fatal(err)
	}
	rec := rig.do(t, http.MethodPost, "/api/user/requests", clientToken, map[string]string{
		"type":           constants.SERVICE_ETAT_CIVIL,
		"payment_method": constants.PAYMENT_METHOD_WALLET,
	})
	var created models.ServiceRequest
	decodeEnvelope(t, rec, &created)

	// An active agent who is not assigned to the request.
	if err := rig.store.CreateUser(models.User{
		ID: "stranger", Name: "stranger", Email: "stranger@test.local",
		Role: constants.ROLE_AGENT, Status: constants.ACCOUNT_STATUS_ACTIVE,
	}); err != nil {
		t.Fatal(err)
	}
	strangerToken := IssueSessionToken(rig.server.Config.SessionSecret, "stranger", sessionTTL)

	if rec := rig.do(t, http.MethodPost, "/api/agent/request/"+created.ID+"/start", strangerToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign start: status %d, want 403", rec.Code)
	}
	if rec := rig.do(t, http.MethodPost, "/api/agent/request/"+created.ID+"/close", strangerToken, map[string]interface{}{
		"final_document": "doc",
	}); rec.Code != http.StatusForbidden {
		t.Errorf("foreign close: status %d, want 403", rec.Code)
	}
}

func TestWalletRechargeOverAPI(t *testing.T) {
	rig := newAPIRig(t)
	token, user := rig.registerClient(t, "Awa", "awa@example.com")

	conf, _ := rig.gateway.ChargeDirect(user.ID, 4000, "ORANGE_MONEY", "+22501020304")
	rec := rig.do(t, http.MethodPost, "/api/user/wallet/recharge", token, map[string]string{
		"charge_token": conf.Token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recharge: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodGet, "/api/user/wallet", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("wallet: status %d", rec.Code)
	}
	var walletData struct {
		Balance int64                `json:"balance"`
		History []models.LedgerEntry `json:"history"`
	}
	decodeEnvelope(t, rec, &walletData)
	if walletData.Balance != 4000 {
		t.Errorf("balance = %d, want 4000", walletData.Balance)
	}
	if len(walletData.History) != 1 {
		t.Errorf("%d history entries, want 1", len(walletData.History))
	}

	rec = rig.do(t, http.MethodPost, "/api/user/wallet/recharge", token, map[string]string{
		"charge_token": "bogus",
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("bogus token: status %d, want 402", rec.Code)
	}
}

func TestWithdrawalOverAPI(t *testing.T) {
	rig := newAPIRig(t)
	token, user := rig.registerClient(t, "Awa", "awa@example.com")
	adminToken := rig.addAdmin(t, "admin")
	if _, err := rig.ledger.Credit(user.ID, 10000, constants.LEDGER_KIND_WALLET_RECHARGE, "seed"); err != nil {
		t.Fatal(err)
	}

	rec := rig.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]interface{}{
		"amount": 3000, "method": "WAVE", "destination": "+22501020304",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("request withdrawal: status %d, body %s", rec.Code, rec.Body.String())
	}
	var w models.WithdrawalRequest
	decodeEnvelope(t, rec, &w)

	rec = rig.do(t, http.MethodPost, "/api/admin/withdrawal/"+w.ID+"/approve", adminToken, map[string]string{
		"comment": "ok",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d, body %s", rec.Code, rec.Body.String())
	}

	balance, _ := rig.store.WalletBalance(user.ID)
	if balance != 7000 {
		t.Errorf("balance = %d, want 7000", balance)
	}
	if payouts := rig.gateway.Payouts(); len(payouts) != 1 {
		t.Errorf("%d payouts, want 1", len(payouts))
	}

	rec = rig.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]interface{}{
		"amount": 100, "method": "WAVE", "destination": "+22501020304",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("below minimum: status %d, want 400", rec.Code)
	}
}

func TestReferralEndpoints(t *testing.T) {
	rig := newAPIRig(t)
	sponsorToken, sponsor := rig.registerClient(t, "Jean Dupont", "jean@example.com")

	rec := rig.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Awa", "email": "awa@example.com", "password": "motdepasse",
		"referral_code": sponsor.ReferralCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("referee registration: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodGet, "/api/user/referrals", sponsorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("referrals: status %d", rec.Code)
	}
	var info struct {
		Code      string            `json:"code"`
		Count     int               `json:"count"`
		Referrals []models.Referral `json:"referrals"`
	}
	decodeEnvelope(t, rec, &info)
	if info.Code != sponsor.ReferralCode || info.Count != 1 || len(info.Referrals) != 1 {
		t.Errorf("referral info = %+v", info)
	}

	rec = rig.do(t, http.MethodGet, "/api/user/referral-qr", sponsorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("qr content type = %q, want image/png", ct)
	}

	// Registration with an unknown sponsor code fails up front.
	rec = rig.do(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Koffi", "email": "koffi@example.com", "password": "motdepasse",
		"referral_code": "NOPE1234",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown sponsor: status %d, want 400", rec.Code)
	}
}

func TestCommentModeration(t *testing.T) {
	rig := newAPIRig(t)
	adminToken := rig.addAdmin(t, "admin")

	rec := rig.do(t, http.MethodPost, "/api/comments", "", map[string]string{
		"post_id": "post-1", "author_name": "Visiteur", "content": "Service rapide, merci.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("post comment: status %d, body %s", rec.Code, rec.Body.String())
	}
	var posted models.BlogComment
	decodeEnvelope(t, rec, &posted)
	if posted.Status != constants.COMMENT_STATUS_PENDING {
		t.Errorf("status = %s, want PENDING", posted.Status)
	}

	rec = rig.do(t, http.MethodGet, "/api/admin/comments/pending", adminToken, nil)
	var pending []models.BlogComment
	decodeEnvelope(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("%d pending comments, want 1", len(pending))
	}

	rec = rig.do(t, http.MethodPost, "/api/admin/comment/"+posted.ID+"/moderate", adminToken, map[string]string{
		"status": constants.COMMENT_STATUS_APPROVED,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("moderate: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = rig.do(t, http.MethodPost, "/api/admin/comment/"+posted.ID+"/moderate", adminToken, map[string]string{
		"status": "WEIRD",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad moderation status: status %d, want 400", rec.Code)
	}
}

func TestAdminExports(t *testing.T) {
	rig := newAPIRig(t)
	adminToken := rig.addAdmin(t, "admin")

	for _, path := range []string{"/api/admin/export/ledger", "/api/admin/export/requests"} {
		rec := rig.do(t, http.MethodGet, path, adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
			continue
		}
		want := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if ct := rec.Header().Get("Content-Type"); ct != want {
			t.Errorf("%s: content type = %q", path, ct)
		}
		if rec.Body.Len() == 0 {
			t.Errorf("%s: empty workbook", path)
		}
	}
}

func TestDeleteUserCannotDeleteSelf(t *testing.T) {
	rig := newAPIRig(t)
	adminToken := rig.addAdmin(t, "admin")

	if rec := rig.do(t, http.MethodDelete, "/api/admin/user/admin", adminToken, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("self delete: status %d, want 400", rec.Code)
	}

	_, user := rig.registerClient(t, "Awa", "awa@example.com")
	if rec := rig.do(t, http.MethodDelete, "/api/admin/user/"+user.ID, adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("delete client: status %d, want 200", rec.Code)
	}
}
