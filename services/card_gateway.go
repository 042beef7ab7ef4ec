package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardChargeParams describes a one-off card payment
type CardChargeParams struct {
	Token       string
	Amount      float64
	Currency    string
	Description string
	Reference   string
}

// CardCharge is a settled charge
type CardCharge struct {
	ChargeID string
	Last4    string
	Brand    string
}

// CardGateway charges a tokenised card synchronously. An error means no money moved.
type CardGateway interface {
	Charge(ctx context.Context, params CardChargeParams) (*CardCharge, error)
}

// HTTPCardGateway posts charges to a hosted card processor
type HTTPCardGateway struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	debug      bool
}

func NewHTTPCardGateway(baseURL, secret string, debug bool) *HTTPCardGateway {
	if baseURL == "" || secret == "" {
		log.Printf("WARNING: card gateway not configured. Please set CARD_GATEWAY_URL and CARD_GATEWAY_SECRET")
	}
	return &HTTPCardGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		debug:      debug,
	}
}

type cardChargeRequest struct {
	Amount      int64             `json:"amount"` // minor units
	Currency    string            `json:"currency"`
	Source      string            `json:"source"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type cardChargeResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Last4          string `json:"last4"`
	Brand          string `json:"brand"`
	FailureMessage string `json:"failure_message"`
}

func (g *HTTPCardGateway) Charge(ctx context.Context, params CardChargeParams) (*CardCharge, error) {
	if g.baseURL == "" || g.secret == "" {
		return nil, errors.New("card gateway credentials are missing")
	}
	if params.Token == "" {
		return nil, errors.New("card token is required")
	}

	payload := cardChargeRequest{
		Amount:      int64(math.Round(params.Amount * 100)),
		Currency:    strings.ToLower(params.Currency),
		Source:      params.Token,
		Description: params.Description,
		Metadata:    map[string]string{"reference": params.Reference},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.secret)
	req.Header.Set("Idempotency-Key", params.Reference)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if g.debug {
		log.Printf("Card gateway response (%d): %s", resp.StatusCode, string(body))
	}

	var out cardChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || out.Status != "succeeded" {
		msg := out.FailureMessage
		if msg == "" {
			msg = "charge " + out.Status
		}
		return nil, fmt.Errorf("card charge declined: %s", msg)
	}

	return &CardCharge{ChargeID: out.ID, Last4: out.Last4, Brand: out.Brand}, nil
}

// SandboxDeclineToken always fails in the sandbox gateway
const SandboxDeclineToken = "tok_chargeDeclined"

// SandboxCardGateway approves every token except SandboxDeclineToken. It is
// only wired when CARD_GATEWAY_ENV=sandbox.
type SandboxCardGateway struct{}

func (SandboxCardGateway) Charge(ctx context.Context, params CardChargeParams) (*CardCharge, error) {
	if params.Token == "" {
		return nil, errors.New("card token is required")
	}
	if params.Token == SandboxDeclineToken {
		return nil, errors.New("card charge declined: sandbox decline token")
	}
	return &CardCharge{ChargeID: "ch_sandbox_" + uuid.NewString(), Last4: "4242", Brand: "visa"}, nil
}
