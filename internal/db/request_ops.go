package db

import (
	"database/sql"
	"log"
	"time"

	"github.com/lib/pq"

	"coursio/internal/models"
	"coursio/internal/storage"
)

const requestColumns = `id, client_id, type, status, details, attachments, final_document,
    assigned_agent_id, payment_method, price, charge_token, reject_reason, created_at, updated_at`

// CreateRequest inserts a new service request.
func (p *Postgres) CreateRequest(r models.ServiceRequest) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := p.db.Exec(`
        INSERT INTO service_requests (id, client_id, type, status, details, attachments,
            final_document, assigned_agent_id, payment_method, price, charge_token,
            reject_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.ClientID, r.Type, r.Status, r.Details, pq.Array(r.Attachments),
		nullIfEmpty(r.FinalDocument), nullIfEmpty(r.AssignedAgentID),
		r.PaymentMethod, r.Price, nullIfEmpty(r.ChargeToken), nullIfEmpty(r.RejectReason),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		// The unique index on charge_token makes one external payment fund
		// at most one request even under concurrent submissions.
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		log.Printf("CreateRequest: error inserting request %s: %v", r.ID, err)
		return err
	}
	return nil
}

// RequestByID retrieves a service request.
func (p *Postgres) RequestByID(id string) (models.ServiceRequest, error) {
	r, err := scanRequest(p.db.QueryRow(
		`SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	if err != nil {
		return models.ServiceRequest{}, mapNotFound(err)
	}
	return r, nil
}

// UpdateRequest persists the request's mutable fields.
func (p *Postgres) UpdateRequest(r models.ServiceRequest) error {
	res, err := p.db.Exec(`
        UPDATE service_requests
        SET status = $2, details = $3, attachments = $4, final_document = $5,
            assigned_agent_id = $6, reject_reason = $7, updated_at = NOW()
        WHERE id = $1`,
		r.ID, r.Status, r.Details, pq.Array(r.Attachments),
		nullIfEmpty(r.FinalDocument), nullIfEmpty(r.AssignedAgentID),
		nullIfEmpty(r.RejectReason))
	if err != nil {
		log.Printf("UpdateRequest: error updating request %s: %v", r.ID, err)
		return err
	}
	return requireRowAffected(res)
}

// ChargeTokenUsed reports whether a request was already funded by the given
// charge token.
func (p *Postgres) ChargeTokenUsed(token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var used bool
	err := p.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM service_requests WHERE charge_token = $1)`,
		token).Scan(&used)
	if err != nil {
		log.Printf("ChargeTokenUsed: query error: %v", err)
		return false, err
	}
	return used, nil
}

// RequestsByClient returns a client's requests, most recent first.
func (p *Postgres) RequestsByClient(clientID string) ([]models.ServiceRequest, error) {
	return p.queryRequests(
		`SELECT `+requestColumns+` FROM service_requests WHERE client_id = $1 ORDER BY created_at DESC`,
		clientID)
}

// RequestsByAgent returns the requests assigned to an agent, most recent
// first.
func (p *Postgres) RequestsByAgent(agentID string) ([]models.ServiceRequest, error) {
	return p.queryRequests(
		`SELECT `+requestColumns+` FROM service_requests WHERE assigned_agent_id = $1 ORDER BY created_at DESC`,
		agentID)
}

// ListRequests returns requests with the given status, or all requests when
// status is empty, most recent first.
func (p *Postgres) ListRequests(status string) ([]models.ServiceRequest, error) {
	if status == "" {
		return p.queryRequests(
			`SELECT ` + requestColumns + ` FROM service_requests ORDER BY created_at DESC`)
	}
	return p.queryRequests(
		`SELECT `+requestColumns+` FROM service_requests WHERE status = $1 ORDER BY created_at DESC`,
		status)
}

func (p *Postgres) queryRequests(query string, args ...interface{}) ([]models.ServiceRequest, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		log.Printf("queryRequests: query error: %v", err)
		return nil, err
	}
	defer rows.Close()

	var requests []models.ServiceRequest
	for rows.Next() {
		r, errScan := scanRequest(rows)
		if errScan != nil {
			log.Printf("queryRequests: scan error: %v", errScan)
			continue
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(row rowScanner) (models.ServiceRequest, error) {
	var r models.ServiceRequest
	var finalDocument, assignedAgentID, chargeToken, rejectReason sql.NullString
	err := row.Scan(&r.ID, &r.ClientID, &r.Type, &r.Status, &r.Details,
		pq.Array(&r.Attachments), &finalDocument, &assignedAgentID,
		&r.PaymentMethod, &r.Price, &chargeToken, &rejectReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	r.FinalDocument = finalDocument.String
	r.AssignedAgentID = assignedAgentID.String
	r.ChargeToken = chargeToken.String
	r.RejectReason = rejectReason.String
	return r, nil
}
