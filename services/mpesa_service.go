package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HSouheill/nairobi_verified/models"
)

const (
	MpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	MpesaProductionURL = "https://api.safaricom.co.ke"

	// Daraja answers a status query with this error code while the customer
	// has not yet acted on the prompt.
	mpesaStillProcessingCode = "500.001.1001"
)

// Outcomes of an STK push
const (
	PaymentOutcomePending = "pending"
	PaymentOutcomePaid    = "paid"
	PaymentOutcomeFailed  = "failed"
)

var eat = time.FixedZone("EAT", 3*60*60)

// STKPushParams describes one Lipa Na M-Pesa prompt
type STKPushParams struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	Description      string
}

// STKStatus is the provider's view of a prompt
type STKStatus struct {
	Outcome    string
	ResultCode int
	ResultDesc string
}

// MobileMoneyGateway initiates and queries M-Pesa STK pushes
type MobileMoneyGateway interface {
	InitiateSTKPush(ctx context.Context, params STKPushParams) (*models.STKPushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKStatus, error)
}

type MpesaConfig struct {
	Environment    string // "production" or anything else for sandbox
	BaseURL        string // overrides Environment when set
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	Debug          bool
}

// MpesaService talks to the Safaricom Daraja API
type MpesaService struct {
	cfg        MpesaConfig
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaService creates a Daraja client
func NewMpesaService(cfg MpesaConfig) *MpesaService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = MpesaSandboxURL
		if cfg.Environment == "production" {
			baseURL = MpesaProductionURL
		}
	}

	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" || cfg.ShortCode == "" || cfg.PassKey == "" {
		log.Printf("WARNING: M-Pesa credentials not fully configured, STK push requests will fail")
	} else {
		log.Printf("M-Pesa Service Configuration:")
		log.Printf("  Base URL: %s", baseURL)
		log.Printf("  Short code: %s", cfg.ShortCode)
		log.Printf("  Callback URL: %s", cfg.CallbackURL)
		log.Printf("  Consumer secret: [CONFIGURED]")
	}

	return &MpesaService{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// accessToken returns a cached OAuth token, refreshing a minute before expiry
func (s *MpesaService) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	if s.cfg.ConsumerKey == "" || s.cfg.ConsumerSecret == "" {
		return "", errors.New("missing M-Pesa credentials. Please set MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("token response did not contain an access token")
	}

	expiresIn, err := strconv.Atoi(tokenResp.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3599
	}

	s.token = tokenResp.AccessToken
	s.tokenExpiry = s.now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	return s.token, nil
}

// password is base64(shortcode + passkey + timestamp)
func (s *MpesaService) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(s.cfg.ShortCode + s.cfg.PassKey + timestamp))
}

func (s *MpesaService) timestamp() string {
	return s.now().In(eat).Format("20060102150405")
}

// makeRequest performs an authenticated POST and decodes the JSON response into out.
// Non-2xx responses are still decoded so callers can inspect Daraja error codes.
func (s *MpesaService) makeRequest(ctx context.Context, endpoint string, payload, out interface{}) (int, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if s.cfg.Debug {
		log.Printf("M-Pesa API Request: POST %s", endpoint)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if s.cfg.Debug {
		log.Printf("M-Pesa API Response (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

// InitiateSTKPush sends a payment prompt to the customer's phone
func (s *MpesaService) InitiateSTKPush(ctx context.Context, params STKPushParams) (*models.STKPushResponse, error) {
	if params.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	timestamp := s.timestamp()

	payload := models.STKPushRequest{
		BusinessShortCode: s.cfg.ShortCode,
		Password:          s.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int64(math.Ceil(params.Amount)),
		PartyA:            params.PhoneNumber,
		PartyB:            s.cfg.ShortCode,
		PhoneNumber:       params.PhoneNumber,
		CallBackURL:       s.cfg.CallbackURL,
		AccountReference:  params.AccountReference,
		TransactionDesc:   params.Description,
	}

	var out models.STKPushResponse
	status, err := s.makeRequest(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out)
	if err != nil {
		return nil, err
	}
	if status >= 300 || out.ResponseCode != "0" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		return &out, fmt.Errorf("mpesa STK push rejected (status %d): %s", status, msg)
	}
	return &out, nil
}

// QuerySTKStatus asks Daraja whether the customer completed the prompt
func (s *MpesaService) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKStatus, error) {
	if checkoutRequestID == "" {
		return nil, errors.New("checkout request id is required")
	}
	timestamp := s.timestamp()

	payload := models.STKQueryRequest{
		BusinessShortCode: s.cfg.ShortCode,
		Password:          s.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var out models.STKQueryResponse
	status, err := s.makeRequest(ctx, "/mpesa/stkpushquery/v1/query", payload, &out)
	if err != nil {
		return nil, err
	}

	if out.ErrorCode == mpesaStillProcessingCode {
		return &STKStatus{Outcome: PaymentOutcomePending, ResultDesc: out.ErrorMessage}, nil
	}
	if status >= 300 || out.ErrorCode != "" {
		return nil, fmt.Errorf("mpesa status query failed (status %d): %s %s", status, out.ErrorCode, out.ErrorMessage)
	}

	code, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("unexpected ResultCode %q: %w", out.ResultCode, err)
	}

	result := &STKStatus{ResultCode: code, ResultDesc: out.ResultDesc, Outcome: PaymentOutcomeFailed}
	if code == 0 {
		result.Outcome = PaymentOutcomePaid
	}
	return result, nil
}
