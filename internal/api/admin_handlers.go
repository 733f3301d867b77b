package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"coursio/internal/constants"
	"coursio/internal/export"
	"coursio/internal/models"
)

// ListUsers returns accounts, optionally filtered by ?role=.
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	users, err := s.Store.ListUsers(role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sanitized := make([]models.User, 0, len(users))
	for _, u := range users {
		sanitized = append(sanitized, u.Sanitized())
	}
	writeJSONSuccess(w, "", sanitized)
}

// ApproveUser activates a pending agent or partner application.
func (s *Server) ApproveUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	user, err := s.Auth.ApproveAccount(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_UPDATE_STATUS, "approved account "+id)
	writeJSONSuccess(w, "account approved", user.Sanitized())
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetUserRole changes an account's role.
func (s *Server) SetUserRole(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.Auth.SetRole(id, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_UPDATE_STATUS, fmt.Sprintf("set role %s on account %s", req.Role, id))
	writeJSONSuccess(w, "role updated", user.Sanitized())
}

// DeleteUser anonymizes an account and rejects its open requests.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	if id == admin.ID {
		writeJSONError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := s.Auth.DeleteUser(id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_UPDATE_STATUS, "deleted account "+id)
	writeJSONSuccess(w, "account deleted", nil)
}

// ListRequests returns service requests, optionally filtered by ?status=.
func (s *Server) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	requests, err := s.Store.ListRequests(status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", requests)
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

// AssignRequest hands a request to an agent.
func (s *Server) AssignRequest(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil || req.AgentID == "" {
		writeJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	updated, err := s.Engine.Assign(id, req.AgentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_UPDATE_STATUS, fmt.Sprintf("assigned request %s to agent %s", id, req.AgentID))
	writeJSONSuccess(w, "request assigned", updated)
}

type rejectRequestBody struct {
	Reason string `json:"reason"`
}

// RejectRequest closes a request as rejected with a reason.
func (s *Server) RejectRequest(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req rejectRequestBody
	if err := decodeJSON(r, &req); err != nil || req.Reason == "" {
		writeJSONError(w, http.StatusBadRequest, "reason is required")
		return
	}

	updated, err := s.Engine.Reject(id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_UPDATE_STATUS, "rejected request "+id)
	writeJSONSuccess(w, "request rejected", updated)
}

// GetConfig returns the fee configuration.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Store.FeeConfig()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", cfg)
}

// UpdateConfig replaces the fee configuration. Prices, commission and bonus
// take effect for operations that start after the save.
func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)

	var cfg models.FeeConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if cfg.CommissionAgentPercent < 0 || cfg.CommissionAgentPercent > 100 {
		writeJSONError(w, http.StatusBadRequest, "commission_agent_percent must be between 0 and 100")
		return
	}
	for serviceType, price := range cfg.Prices {
		if !constants.IsValidServiceType(serviceType) {
			writeJSONError(w, http.StatusBadRequest, "unknown service type: "+serviceType)
			return
		}
		if price < 0 {
			writeJSONError(w, http.StatusBadRequest, "negative price for "+serviceType)
			return
		}
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.Store.SaveFeeConfig(cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_CONFIG_CHANGE, "")
	writeJSONSuccess(w, "configuration saved", cfg)
}

// ListWithdrawals returns the pending withdrawal queue.
func (s *Server) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := s.Wallet.Pending()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", withdrawals)
}

type withdrawalDecision struct {
	Comment string `json:"comment,omitempty"`
}

// ApproveWithdrawal debits the wallet and pays out.
func (s *Server) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req withdrawalDecision
	decodeJSON(r, &req)

	withdrawal, err := s.Wallet.Approve(id, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_WITHDRAWAL, "approved withdrawal "+id)
	writeJSONSuccess(w, "withdrawal approved", withdrawal)
}

// RejectWithdrawal declines a pending withdrawal.
func (s *Server) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req withdrawalDecision
	decodeJSON(r, &req)

	withdrawal, err := s.Wallet.Reject(id, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_WITHDRAWAL, "rejected withdrawal "+id)
	writeJSONSuccess(w, "withdrawal rejected", withdrawal)
}

// ExportLedger streams the full ledger journal as XLSX.
func (s *Server) ExportLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Store.AllEntries()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	buf, err := export.LedgerJournal(entries, s.Store)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="journal-%s.xlsx"`, time.Now().Format("2006-01-02")))
	w.Write(buf.Bytes())
}

// ExportRequests streams the service request register as XLSX.
func (s *Server) ExportRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.Store.ListRequests("")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	buf, err := export.RequestRegister(requests, s.Store)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dossiers-%s.xlsx"`, time.Now().Format("2006-01-02")))
	w.Write(buf.Bytes())
}

// ListMessages returns every support message.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.Store.AllMessages()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", messages)
}

// MarkMessageRead flags a support message as handled.
func (s *Server) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Store.MarkMessageRead(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "message marked as read", nil)
}

// PendingComments returns the comment moderation queue.
func (s *Server) PendingComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.Store.CommentsByStatus(constants.COMMENT_STATUS_PENDING)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", comments)
}

type moderateCommentRequest struct {
	Status string `json:"status"`
}

// ModerateComment approves or rejects a queued comment.
func (s *Server) ModerateComment(w http.ResponseWriter, r *http.Request) {
	admin, _ := currentUser(r)
	id := chi.URLParam(r, "id")

	var req moderateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status != constants.COMMENT_STATUS_APPROVED && req.Status != constants.COMMENT_STATUS_REJECTED {
		writeJSONError(w, http.StatusBadRequest, "status must be APPROVED or REJECTED")
		return
	}

	if err := s.Store.ModerateComment(id, req.Status); err != nil {
		writeServiceError(w, err)
		return
	}
	s.logActivity(admin, constants.ACTIVITY_COMMENT, fmt.Sprintf("moderated comment %s: %s", id, req.Status))
	writeJSONSuccess(w, "comment moderated", nil)
}

// RecentActivity returns the latest audit records.
func (s *Server) RecentActivity(w http.ResponseWriter, r *http.Request) {
	records, err := s.Store.RecentActivity(100)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONSuccess(w, "", records)
}
