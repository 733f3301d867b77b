package models

import "time"

// ServiceRequest is a unit of administrative work submitted by a client and
// progressed by agents and admins through a fixed state machine:
// PENDING -> IN_PROGRESS -> VALIDATED | REJECTED. Terminal states are
// immutable; a correction requires a new request.
type ServiceRequest struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Details         string    `json:"details"`
	Attachments     []string  `json:"attachments,omitempty"`    // opaque file refs from the client
	FinalDocument   string    `json:"final_document,omitempty"` // set only on VALIDATED
	AssignedAgentID string    `json:"assigned_agent_id,omitempty"`
	PaymentMethod   string    `json:"payment_method"`
	Price           int64     `json:"price"`                  // FCFA charged at submission
	ChargeToken     string    `json:"charge_token,omitempty"` // DIRECT payments only; one token funds one request
	RejectReason    string    `json:"reject_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
