package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to a mobile-money aggregator (Orange Money, MTN MoMo, Wave)
// over its REST API. Credentials come from configuration; requests carry an
// idempotence key so a retried call cannot double-charge.
type Client struct {
	endpoint  string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewClient builds a gateway client for the given aggregator endpoint.
func NewClient(endpoint, apiKey, apiSecret string) *Client {
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type chargeRequest struct {
	Amount      amountBody `json:"amount"`
	Method      string     `json:"method"`
	Phone       string     `json:"phone"`
	Description string     `json:"description,omitempty"`
	Metadata    metadata   `json:"metadata,omitempty"`
}

type payoutRequest struct {
	Amount      amountBody `json:"amount"`
	Method      string     `json:"method"`
	Destination string     `json:"destination"`
	Metadata    metadata   `json:"metadata,omitempty"`
}

type amountBody struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type metadata map[string]string

type chargeResponse struct {
	Token     string     `json:"token"`
	Status    string     `json:"status"`
	Paid      bool       `json:"paid"`
	Amount    amountBody `json:"amount"`
	Method    string     `json:"method"`
	CreatedAt time.Time  `json:"created_at"`
}

type payoutResponse struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    amountBody `json:"amount"`
	Method    string     `json:"method"`
	CreatedAt time.Time  `json:"created_at"`
}

// ChargeDirect asks the aggregator to initiate a charge against the given
// mobile-money number.
func (c *Client) ChargeDirect(userID string, amount int64, method, phone string) (ChargeConfirmation, error) {
	body := chargeRequest{
		Amount:   amountBody{Value: amount, Currency: "XOF"},
		Method:   method,
		Phone:    phone,
		Metadata: metadata{"user_id": userID},
	}
	var resp chargeResponse
	if err := c.post("/charges", body, &resp); err != nil {
		return ChargeConfirmation{}, err
	}
	log.Printf("Gateway: charge %s created for user %s, status %s", resp.Token, userID, resp.Status)
	return confirmationFrom(resp), nil
}

// VerifyCharge resolves a charge token. Unknown or unpaid tokens yield
// ErrChargeFailed.
func (c *Client) VerifyCharge(token string) (ChargeConfirmation, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.endpoint+"/charges/"+token, nil)
	if err != nil {
		return ChargeConfirmation{}, fmt.Errorf("building verify request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return ChargeConfirmation{}, fmt.Errorf("verifying charge %s: %w", token, ErrChargeFailed)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ChargeConfirmation{}, fmt.Errorf("reading verify response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		log.Printf("Gateway: verify of charge %s returned status %d: %s", token, httpResp.StatusCode, raw)
		return ChargeConfirmation{}, ErrChargeFailed
	}

	var resp chargeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ChargeConfirmation{}, fmt.Errorf("decoding verify response: %w", err)
	}
	if !resp.Paid {
		return ChargeConfirmation{}, fmt.Errorf("charge %s not paid (status %s): %w", token, resp.Status, ErrChargeFailed)
	}
	return confirmationFrom(resp), nil
}

// Payout pushes funds to a mobile-money destination.
func (c *Client) Payout(userID string, amount int64, method, destination string) (PayoutConfirmation, error) {
	body := payoutRequest{
		Amount:      amountBody{Value: amount, Currency: "XOF"},
		Method:      method,
		Destination: destination,
		Metadata:    metadata{"user_id": userID},
	}
	var resp payoutResponse
	if err := c.post("/payouts", body, &resp); err != nil {
		return PayoutConfirmation{}, err
	}
	log.Printf("Gateway: payout %s of %d via %s for user %s", resp.Reference, amount, method, userID)
	return PayoutConfirmation{
		Reference: resp.Reference,
		Amount:    resp.Amount.Value,
		Method:    resp.Method,
		CreatedAt: resp.CreatedAt,
	}, nil
}

func (c *Client) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.endpoint+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("building gateway request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("Gateway: request to %s failed: %v", path, err)
		return fmt.Errorf("gateway %s: %w", path, ErrChargeFailed)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("Gateway: %s returned status %d: %s", path, resp.StatusCode, raw)
		return fmt.Errorf("gateway %s status %d: %w", path, resp.StatusCode, ErrChargeFailed)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func confirmationFrom(resp chargeResponse) ChargeConfirmation {
	return ChargeConfirmation{
		Token:     resp.Token,
		Amount:    resp.Amount.Value,
		Currency:  resp.Amount.Currency,
		Method:    resp.Method,
		Paid:      resp.Paid,
		CreatedAt: resp.CreatedAt,
	}
}
