package lifecycle

import (
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
)

var (
	ErrRequestNotFound      = errors.New("request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrAlreadyTerminal      = errors.New("request already in a terminal state")
	ErrUnknownServiceType   = errors.New("unknown service type")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrMissingFinalDocument = errors.New("final document required")
)

// Engine owns the service-request state machine. Transitions on a given
// request are linearized by a per-request lock; balance effects go through
// the ledger, which serializes per user. External gateway calls are made
// before any lock is taken.
type Engine struct {
	requests storage.RequestStore
	users    storage.UserStore
	config   storage.ConfigStore
	ledger   *ledger.Ledger
	gateway  payments.Gateway
	notifier notify.Notifier
	locks    *requestLocks
}

// New wires an engine over its collaborators.
func New(requests storage.RequestStore, users storage.UserStore, config storage.ConfigStore,
	l *ledger.Ledger, gateway payments.Gateway, notifier notify.Notifier) *Engine {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		requests: requests,
		users:    users,
		config:   config,
		ledger:   l,
		gateway:  gateway,
		notifier: notifier,
		locks:    newRequestLocks(),
	}
}

// SubmitInput carries everything a client submission needs. ChargeToken is
// required for DIRECT payments and must reference a gateway-verified charge
// covering the service price.
type SubmitInput struct {
	ClientID      string
	Type          string
	Details       string
	Attachments   []string
	PaymentMethod string
	ChargeToken   string
}

// Submit creates a request in PENDING. For WALLET payments the debit is
// applied before the request is persisted: on InsufficientFunds nothing is
// created. For DIRECT payments the charge token is verified with the gateway
// first; the engine never trusts the caller's claim that a charge succeeded.
func (e *Engine) Submit(in SubmitInput) (models.ServiceRequest, error) {
	if !constants.IsValidServiceType(in.Type) {
		return models.ServiceRequest{}, fmt.Errorf("type %q: %w", in.Type, ErrUnknownServiceType)
	}

	client, err := e.users.UserByID(in.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ServiceRequest{}, ErrUserNotFound
		}
		return models.ServiceRequest{}, fmt.Errorf("submit: %w", err)
	}

	cfg, err := e.config.FeeConfig()
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("submit: reading fee config: %w", err)
	}
	price, ok := cfg.PriceFor(in.Type)
	if !ok {
		return models.ServiceRequest{}, fmt.Errorf("type %q has no configured price: %w", in.Type, ErrUnknownServiceType)
	}

	requestID := uuid.New().String()

	switch in.PaymentMethod {
	case constants.PAYMENT_METHOD_WALLET:
		// Debit precedes visibility: a request only exists once paid.
		if _, err := e.ledger.Debit(client.ID, price, constants.LEDGER_KIND_SERVICE_PAYMENT, requestID); err != nil {
			return models.ServiceRequest{}, err
		}
	case constants.PAYMENT_METHOD_DIRECT:
		// Gateway verification happens outside any lock; it may be slow.
		conf, err := e.gateway.VerifyCharge(in.ChargeToken)
		if err != nil {
			return models.ServiceRequest{}, err
		}
		if conf.Amount < price {
			return models.ServiceRequest{}, fmt.Errorf("charge %s covers %d of %d: %w",
				in.ChargeToken, conf.Amount, price, payments.ErrChargeFailed)
		}
		// One external payment funds one request. The store's unique charge
		// token constraint backs this check against concurrent submissions.
		used, err := e.requests.ChargeTokenUsed(in.ChargeToken)
		if err != nil {
			return models.ServiceRequest{}, fmt.Errorf("submit: checking charge token: %w", err)
		}
		if used {
			return models.ServiceRequest{}, fmt.Errorf("charge %s already funded a request: %w",
				in.ChargeToken, payments.ErrChargeFailed)
		}
	default:
		return models.ServiceRequest{}, fmt.Errorf("payment method %q: %w", in.PaymentMethod, ErrInvalidPaymentMethod)
	}

	now := time.Now().UTC()
	req := models.ServiceRequest{
		ID:            requestID,
		ClientID:      client.ID,
		Type:          in.Type,
		Status:        constants.REQUEST_STATUS_PENDING,
		Details:       in.Details,
		Attachments:   in.Attachments,
		PaymentMethod: in.PaymentMethod,
		Price:         price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.PaymentMethod == constants.PAYMENT_METHOD_DIRECT {
		req.ChargeToken = in.ChargeToken
	}
	if err := e.requests.CreateRequest(req); err != nil {
		// The debit already landed; compensate so the wallet is whole.
		if in.PaymentMethod == constants.PAYMENT_METHOD_WALLET {
			if _, refundErr := e.ledger.Credit(client.ID, price, constants.LEDGER_KIND_REFUND, requestID); refundErr != nil {
				log.Printf("Submit: CRITICAL: request %s not created and refund failed for user %s: %v", requestID, client.ID, refundErr)
			}
		}
		if errors.Is(err, storage.ErrConflict) && in.PaymentMethod == constants.PAYMENT_METHOD_DIRECT {
			return models.ServiceRequest{}, fmt.Errorf("charge %s already funded a request: %w",
				in.ChargeToken, payments.ErrChargeFailed)
		}
		return models.ServiceRequest{}, fmt.Errorf("submit: persisting request: %w", err)
	}

	e.notifier.Notify(notify.Event{
		Kind:      "request.submitted",
		UserID:    client.ID,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Nouvelle demande %s (%d FCFA, %s)", req.Type, price, in.PaymentMethod),
	})
	log.Printf("Request %s submitted by %s: %s, %d FCFA via %s", req.ID, client.ID, req.Type, price, in.PaymentMethod)
	return req, nil
}

// Assign sets or resets the agent handling a request. Allowed at any
// non-terminal state; does not change the status.
func (e *Engine) Assign(requestID, agentID string) (models.ServiceRequest, error) {
	agent, err := e.users.UserByID(agentID)
	if err != nil || agent.Role != constants.ROLE_AGENT || agent.Status != constants.ACCOUNT_STATUS_ACTIVE {
		return models.ServiceRequest{}, fmt.Errorf("agent %q: %w", agentID, ErrAgentNotFound)
	}

	unlock := e.locks.lock(requestID)
	defer unlock()

	req, err := e.loadNonTerminal(requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}

	req.AssignedAgentID = agentID
	if err := e.requests.UpdateRequest(req); err != nil {
		return models.ServiceRequest{}, fmt.Errorf("assign: %w", err)
	}
	e.notifier.Notify(notify.Event{
		Kind:      "request.assigned",
		UserID:    agentID,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Dossier %s affecté à %s", req.ID, agent.Name),
	})
	return req, nil
}

// StartProcessing moves PENDING to IN_PROGRESS. Calling it on a request
// already IN_PROGRESS is a no-op, so an agent double-clicking changes
// nothing.
func (e *Engine) StartProcessing(requestID string) (models.ServiceRequest, error) {
	unlock := e.locks.lock(requestID)
	defer unlock()

	req, err := e.loadNonTerminal(requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	if req.Status == constants.REQUEST_STATUS_IN_PROGRESS {
		return req, nil
	}

	req.Status = constants.REQUEST_STATUS_IN_PROGRESS
	if err := e.requests.UpdateRequest(req); err != nil {
		return models.ServiceRequest{}, fmt.Errorf("startProcessing: %w", err)
	}
	e.notifier.Notify(notify.Event{
		Kind:      "request.in_progress",
		UserID:    req.ClientID,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Dossier %s en cours de traitement", req.ID),
	})
	return req, nil
}

// Close moves a non-terminal request to VALIDATED, storing the final
// document. A close without a document is refused unless force is set (an
// operational override the boundary must confirm explicitly). The assigned
// agent, when there is one, is credited their commission; an unassigned
// close simply skips the commission.
func (e *Engine) Close(requestID, finalDocumentRef string, force bool) (models.ServiceRequest, error) {
	if finalDocumentRef == "" && !force {
		return models.ServiceRequest{}, ErrMissingFinalDocument
	}

	unlock := e.locks.lock(requestID)
	defer unlock()

	req, err := e.loadNonTerminal(requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}

	commission := int64(0)
	var commissionEntry models.LedgerEntry
	if req.AssignedAgentID != "" {
		cfg, err := e.config.FeeConfig()
		if err != nil {
			return models.ServiceRequest{}, fmt.Errorf("close: reading fee config: %w", err)
		}
		commission = req.Price * cfg.CommissionAgentPercent / 100
	}
	if commission > 0 {
		// Credit before persisting the transition; a failed persist below
		// compensates the credit so neither side is left half-applied.
		commissionEntry, err = e.ledger.Credit(req.AssignedAgentID, commission, constants.LEDGER_KIND_AGENT_COMMISSION, req.ID)
		if err != nil {
			return models.ServiceRequest{}, fmt.Errorf("close: crediting commission: %w", err)
		}
	}

	req.Status = constants.REQUEST_STATUS_VALIDATED
	req.FinalDocument = finalDocumentRef
	if err := e.requests.UpdateRequest(req); err != nil {
		if commission > 0 {
			if _, debitErr := e.ledger.Debit(req.AssignedAgentID, commission, constants.LEDGER_KIND_AGENT_COMMISSION, req.ID); debitErr != nil {
				log.Printf("Close: CRITICAL: transition of %s failed and commission entry %s not compensated: %v", req.ID, commissionEntry.ID, debitErr)
			}
		}
		return models.ServiceRequest{}, fmt.Errorf("close: persisting transition: %w", err)
	}

	e.notifier.Notify(notify.Event{
		Kind:      "request.validated",
		UserID:    req.ClientID,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Dossier %s validé, document disponible", req.ID),
	})
	log.Printf("Request %s validated; commission %d to agent %s", req.ID, commission, req.AssignedAgentID)
	return req, nil
}

// Reject moves any non-terminal request to REJECTED. A WALLET payment is
// refunded only when the fee configuration enables RefundOnReject; the
// default keeps the historical behavior of no automatic refund.
func (e *Engine) Reject(requestID, reason string) (models.ServiceRequest, error) {
	unlock := e.locks.lock(requestID)
	defer unlock()

	req, err := e.loadNonTerminal(requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}

	cfg, err := e.config.FeeConfig()
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("reject: reading fee config: %w", err)
	}

	refund := int64(0)
	var refundEntry models.LedgerEntry
	if cfg.RefundOnReject && req.PaymentMethod == constants.PAYMENT_METHOD_WALLET && req.Price > 0 {
		refund = req.Price
		refundEntry, err = e.ledger.Credit(req.ClientID, refund, constants.LEDGER_KIND_REFUND, req.ID)
		if err != nil {
			return models.ServiceRequest{}, fmt.Errorf("reject: refunding payment: %w", err)
		}
	}

	req.Status = constants.REQUEST_STATUS_REJECTED
	req.RejectReason = reason
	if err := e.requests.UpdateRequest(req); err != nil {
		if refund > 0 {
			if _, debitErr := e.ledger.Debit(req.ClientID, refund, constants.LEDGER_KIND_REFUND, req.ID); debitErr != nil {
				log.Printf("Reject: CRITICAL: transition of %s failed and refund entry %s not compensated: %v", req.ID, refundEntry.ID, debitErr)
			}
		}
		return models.ServiceRequest{}, fmt.Errorf("reject: persisting transition: %w", err)
	}

	e.notifier.Notify(notify.Event{
		Kind:      "request.rejected",
		UserID:    req.ClientID,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Dossier %s rejeté: %s", req.ID, reason),
	})
	return req, nil
}

// Get returns a request by id.
func (e *Engine) Get(requestID string) (models.ServiceRequest, error) {
	req, err := e.requests.RequestByID(requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ServiceRequest{}, ErrRequestNotFound
		}
		return models.ServiceRequest{}, err
	}
	return req, nil
}

func (e *Engine) loadNonTerminal(requestID string) (models.ServiceRequest, error) {
	req, err := e.requests.RequestByID(requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ServiceRequest{}, ErrRequestNotFound
		}
		return models.ServiceRequest{}, err
	}
	if constants.IsTerminalRequestStatus(req.Status) {
		return models.ServiceRequest{}, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, ErrAlreadyTerminal)
	}
	return req, nil
}
