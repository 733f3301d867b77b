package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

const sessionTTL = 72 * time.Hour

// Server bundles the handler dependencies.
type Server struct {
	Config *config.Config
	Store  storage.Store
	Auth   *auth.Service
	Engine *lifecycle.Engine
	Ledger *ledger.Ledger
	Graph  *referral.Graph
	Wallet *wallet.Service
}

// jsonResponse is the standard API envelope.
type jsonResponse struct {
	Status  string      `json:"status"` // "success" or "error"
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonResponse{Status: "error", Message: message})
}

func writeJSONSuccess(w http.ResponseWriter, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jsonResponse{Status: "success", Message: message, Data: data})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps service layer errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		writeJSONError(w, http.StatusPaymentRequired, insufficient.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountNotActive):
		writeJSONError(w, http.StatusForbidden, "account is not active")
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSONError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrInvalidRole):
		writeJSONError(w, http.StatusBadRequest, "unknown role")
	case errors.Is(err, referral.ErrUnknownReferralCode):
		writeJSONError(w, http.StatusBadRequest, "unknown referral code")
	case errors.Is(err, referral.ErrSelfReferral):
		writeJSONError(w, http.StatusBadRequest, "self referral is not allowed")
	case errors.Is(err, lifecycle.ErrAlreadyTerminal):
		writeJSONError(w, http.StatusConflict, "request is already in a terminal state")
	case errors.Is(err, lifecycle.ErrUnknownServiceType):
		writeJSONError(w, http.StatusBadRequest, "unknown service type")
	case errors.Is(err, lifecycle.ErrInvalidPaymentMethod):
		writeJSONError(w, http.StatusBadRequest, "invalid payment method")
	case errors.Is(err, lifecycle.ErrMissingFinalDocument):
		writeJSONError(w, http.StatusBadRequest, "final document reference is required")
	case errors.Is(err, lifecycle.ErrAgentNotFound):
		writeJSONError(w, http.StatusBadRequest, "agent not found or not active")
	case errors.Is(err, wallet.ErrBelowMinimum):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrNotPending):
		writeJSONError(w, http.StatusConflict, "withdrawal request already processed")
	case errors.Is(err, payments.ErrChargeFailed):
		writeJSONError(w, http.StatusPaymentRequired, "external charge could not be confirmed")
	case errors.Is(err, lifecycle.ErrRequestNotFound),
		errors.Is(err, wallet.ErrWithdrawalNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	default:
		log.Printf("API: internal error: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// logActivity appends an audit record. Failures only get logged.
func (s *Server) logActivity(user models.User, action, details string) {
	err := s.Store.AppendActivity(models.ActivityLog{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		UserName:  user.Name,
		UserRole:  user.Role,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("logActivity: could not record %s for user %s: %v", action, user.ID, err)
	}
}

// --- Authentication ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login verifies credentials and issues a session token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.Auth.VerifyCredential(req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token := IssueSessionToken(s.Config.SessionSecret, user.ID, sessionTTL)
	s.logActivity(user, constants.ACTIVITY_LOGIN, "")
	writeJSONSuccess(w, "logged in", loginResponse{Token: token, User: user.Sanitized()})
}

type registerClientRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// RegisterClient creates a client account, optionally under a sponsor code.
func (s *Server) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	phone := req.Phone
	if phone != "" {
		if phone, err = utils.ValidatePhoneNumber(phone); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if len(req.Password) < 8 {
		writeJSONError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := s.Auth.RegisterClient(auth.RegisterClientInput{
		Name:         req.Name,
		Email:        email,
		Phone:        phone,
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.logActivity(user, constants.ACTIVITY_REGISTER, "")

	token := IssueSessionToken(s.Config.SessionSecret, user.ID, sessionTTL)
	writeJSONSuccess(w, "account created", loginResponse{Token: token, User: user.Sanitized()})
}

type registerStaffRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Zone     string `json:"zone,omitempty"`
	Details  string `json:"details,omitempty"`
}

// RegisterAgent files an agent application. The account stays pending until
// an admin approves it.
func (s *Server) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.Auth.RegisterAgentApplication(req.Name, email, req.Phone, req.Password, req.Zone)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(user, constants.ACTIVITY_REGISTER, "agent application")
	writeJSONSuccess(w, "application received, awaiting approval", user.Sanitized())
}

// RegisterPartner files a partner application.
func (s *Server) RegisterPartner(w http.ResponseWriter, r *http.Request) {
	var req registerStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.Auth.RegisterPartnerApplication(req.Name, email, req.Phone, req.Password, req.Details)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(user, constants.ACTIVITY_REGISTER, "partner application")
	writeJSONSuccess(w, "application received, awaiting approval", user.Sanitized())
}

// --- Profile and requests ---

// GetProfile returns the authenticated user's account.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "no user in context")
		return
	}
	writeJSONSuccess(w, "", user.Sanitized())
}

type submitRequestBody struct {
	Type          string   `json:"type"`
	Details       string   `json:"details"`
	Attachments   []string `json:"attachments,omitempty"`
	PaymentMethod string   `json:"payment_method"`
	ChargeToken   string   `json:"charge_token,omitempty"`
}

// SubmitRequest files a new service request for the authenticated client.
func (s *Server) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	var req submitRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := s.Engine.Submit(lifecycle.SubmitInput{
		ClientID:      user.ID,
		Type:          req.Type,
		Details:       req.Details,
		Attachments:   req.Attachments,
		PaymentMethod: req.PaymentMethod,
		ChargeToken:   req.ChargeToken,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.logActivity(user, constants.ACTIVITY_CREATE_REQUEST, created.ID)
	writeJSONSuccess(w, "request submitted", created)
}

// GetMyRequests lists the authenticated client's requests.
func (s *Server) GetMyRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	requests, err := s.Store.RequestsByClient(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", requests)
}

// GetRequestDetails returns one request. Clients only see their own;
// agents only see what is assigned to them.
func (s *Server) GetRequestDetails(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	req, err := s.Engine.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch user.Role {
	case constants.ROLE_ADMIN:
	case constants.ROLE_AGENT:
		if req.AssignedAgentID != user.ID {
			writeJSONError(w, http.StatusForbidden, "request is not assigned to you")
			return
		}
	default:
		if req.ClientID != user.ID {
			writeJSONError(w, http.StatusForbidden, "not your request")
			return
		}
	}
	writeJSONSuccess(w, "", req)
}

// --- Wallet ---

type walletResponse struct {
	Balance int64                `json:"balance"`
	History []models.LedgerEntry `json:"history"`
}

// GetWallet returns the balance and entry history of the authenticated user.
func (s *Server) GetWallet(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	balance, err := s.Ledger.BalanceOf(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	history, err := s.Ledger.HistoryOf(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", walletResponse{Balance: balance, History: history})
}

type rechargeRequest struct {
	ChargeToken string `json:"charge_token"`
}

// RechargeWallet credits the wallet from a gateway-confirmed charge.
func (s *Server) RechargeWallet(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	var req rechargeRequest
	if err := decodeJSON(r, &req); err != nil || req.ChargeToken == "" {
		writeJSONError(w, http.StatusBadRequest, "charge_token is required")
		return
	}

	entry, err := s.Wallet.Recharge(user.ID, req.ChargeToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(user, constants.ACTIVITY_RECHARGE, req.ChargeToken)
	writeJSONSuccess(w, "wallet recharged", entry)
}

type withdrawalRequestBody struct {
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	Destination string `json:"destination"`
}

// RequestWithdrawal files a withdrawal request for admin review.
func (s *Server) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	var req withdrawalRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Destination == "" {
		writeJSONError(w, http.StatusBadRequest, "destination is required")
		return
	}

	withdrawal, err := s.Wallet.RequestWithdrawal(user.ID, req.Amount, req.Method, req.Destination)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "withdrawal requested", withdrawal)
}

// GetMyWithdrawals lists the authenticated user's withdrawal requests.
func (s *Server) GetMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	withdrawals, err := s.Wallet.WithdrawalsOf(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", withdrawals)
}

// --- Referrals ---

type referralInfoResponse struct {
	Code      string            `json:"code"`
	Count     int               `json:"count"`
	Referrals []models.Referral `json:"referrals"`
}

// GetReferrals returns the authenticated user's referral code and edges.
func (s *Server) GetReferrals(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	referrals, err := s.Graph.ReferralsOf(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", referralInfoResponse{
		Code:      user.ReferralCode,
		Count:     user.ReferralCount,
		Referrals: referrals,
	})
}

// GetReferralLink returns the shareable registration link.
func (s *Server) GetReferralLink(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	if user.ReferralCode == "" {
		writeJSONError(w, http.StatusNotFound, "account has no referral code")
		return
	}
	link, err := utils.GenerateReferralLink(s.Config.AppBaseURL, user.ReferralCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", map[string]string{"link": link})
}

// GetReferralQR streams a PNG QR code of the referral link.
func (s *Server) GetReferralQR(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	if user.ReferralCode == "" {
		writeJSONError(w, http.StatusNotFound, "account has no referral code")
		return
	}
	png, err := utils.GenerateReferralQRCode(s.Config.AppBaseURL, user.ReferralCode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="referral-%s.png"`, user.ReferralCode))
	w.Write(png)
}

// --- Messaging and comments ---

type messageRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// SendMessage files a support message from the authenticated user.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil || req.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	m := models.Message{
		ID:              uuid.New().String(),
		SenderID:        user.ID,
		SenderName:      user.Name,
		ReceiverRole:    constants.ROLE_ADMIN,
		Subject:         req.Subject,
		Content:         req.Content,
		IsAdminResponse: user.Role == constants.ROLE_ADMIN,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Store.CreateMessage(m); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "message sent", m)
}

// GetMyMessages lists the authenticated user's support thread.
func (s *Server) GetMyMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	messages, err := s.Store.MessagesForUser(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", messages)
}

type commentRequest struct {
	PostID     string `json:"post_id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
}

// PostComment queues a blog comment for moderation. Public, no account
// needed.
func (s *Server) PostComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil || req.Content == "" || req.PostID == "" {
		writeJSONError(w, http.StatusBadRequest, "post_id and content are required")
		return
	}

	c := models.BlogComment{
		ID:         uuid.New().String(),
		PostID:     req.PostID,
		AuthorName: req.AuthorName,
		Content:    req.Content,
		Status:     constants.COMMENT_STATUS_PENDING,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Store.CreateComment(c); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "comment submitted for moderation", c)
}

// --- Agent operations ---

// GetAssignedRequests lists the requests assigned to the authenticated
// agent.
func (s *Server) GetAssignedRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	requests, err := s.Store.RequestsByAgent(user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", requests)
}

// StartRequest moves an assigned request into processing.
func (s *Server) StartRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	req, err := s.Engine.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user.Role != constants.ROLE_ADMIN && req.AssignedAgentID != user.ID {
		writeJSONError(w, http.StatusForbidden, "request is not assigned to you")
		return
	}

	updated, err := s.Engine.StartProcessing(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "processing started", updated)
}

type closeRequestBody struct {
	FinalDocument string `json:"final_document"`
	Force         bool   `json:"force,omitempty"`
}

// CloseRequest validates a request with its final document. Only admins may
// force a close without a document.
func (s *Server) CloseRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var body closeRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.Engine.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user.Role != constants.ROLE_ADMIN {
		if req.AssignedAgentID != user.ID {
			writeJSONError(w, http.StatusForbidden, "request is not assigned to you")
			return
		}
		body.Force = false
	}

	updated, err := s.Engine.Close(id, body.FinalDocument, body.Force)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(user, constants.ACTIVITY_UPDATE_STATUS, id)
	writeJSONSuccess(w, "request validated", updated)
}
