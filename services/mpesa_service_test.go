package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/models"
)

type darajaStub struct {
	tokenCalls atomic.Int32
	lastPush   models.STKPushRequest
	query      func(w http.ResponseWriter)
	push       func(w http.ResponseWriter)
}

func (d *darajaStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		d.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d.lastPush))
		if d.push != nil {
			d.push(w)
			return
		}
		_ = json.NewEncoder(w).Encode(models.STKPushResponse{
			MerchantRequestID: "29115-34620561-1",
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResponseCode:      "0",
		})
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		d.query(w)
	})
	return mux
}

func newTestMpesa(t *testing.T, stub *darajaStub) *MpesaService {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	svc := NewMpesaService(MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		PassKey:        "passkey",
		CallbackURL:    "https://example.com/api/subscriptions/mpesa-callback",
	})
	svc.now = func() time.Time { return time.Date(2025, time.June, 10, 6, 30, 0, 0, time.UTC) }
	return svc
}

func TestMpesaService_InitiateSTKPush(t *testing.T) {
	stub := &darajaStub{}
	svc := newTestMpesa(t, stub)

	resp, err := svc.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber:      "254712345678",
		Amount:           1499.40,
		AccountReference: "NairobiVerified-abc",
		Description:      "Gold subscription",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)

	push := stub.lastPush
	assert.Equal(t, "20250610093000", push.Timestamp, "timestamp is East Africa Time")
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379passkey20250610093000")), push.Password)
	assert.EqualValues(t, 1500, push.Amount, "amount rounds up to whole shillings")
	assert.Equal(t, "CustomerPayBillOnline", push.TransactionType)
	assert.Equal(t, "254712345678", push.PartyA)
	assert.Equal(t, "174379", push.PartyB)
	assert.Equal(t, "NairobiVerified-abc", push.AccountReference)
}

func TestMpesaService_CachesAccessToken(t *testing.T) {
	stub := &darajaStub{}
	svc := newTestMpesa(t, stub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.InitiateSTKPush(ctx, STKPushParams{PhoneNumber: "254712345678", Amount: 10})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, stub.tokenCalls.Load())
}

func TestMpesaService_PushRejected(t *testing.T) {
	stub := &darajaStub{push: func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"errorCode":    "400.002.02",
			"errorMessage": "Bad Request - Invalid PhoneNumber",
		})
	}}
	svc := newTestMpesa(t, stub)

	_, err := svc.InitiateSTKPush(context.Background(), STKPushParams{PhoneNumber: "254712345678", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
}

func TestMpesaService_InvalidAmount(t *testing.T) {
	svc := newTestMpesa(t, &darajaStub{})

	_, err := svc.InitiateSTKPush(context.Background(), STKPushParams{PhoneNumber: "254712345678", Amount: 0})
	assert.Error(t, err)
}

func TestMpesaService_QuerySTKStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]string
		want    string
		code    int
		wantErr bool
	}{
		{
			name: "paid",
			body: map[string]string{"ResponseCode": "0", "ResultCode": "0", "ResultDesc": "The service request is processed successfully."},
			want: PaymentOutcomePaid,
		},
		{
			name: "cancelled by user",
			body: map[string]string{"ResponseCode": "0", "ResultCode": "1032", "ResultDesc": "Request cancelled by user"},
			want: PaymentOutcomeFailed,
			code: 1032,
		},
		{
			name:   "still processing",
			status: http.StatusInternalServerError,
			body:   map[string]string{"errorCode": "500.001.1001", "errorMessage": "The transaction is being processed"},
			want:   PaymentOutcomePending,
		},
		{
			name:    "other provider error",
			status:  http.StatusBadRequest,
			body:    map[string]string{"errorCode": "400.002.02", "errorMessage": "Invalid CheckoutRequestID"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &darajaStub{query: func(w http.ResponseWriter) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_ = json.NewEncoder(w).Encode(tt.body)
			}}
			svc := newTestMpesa(t, stub)

			status, err := svc.QuerySTKStatus(context.Background(), "ws_CO_1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.Outcome)
			assert.Equal(t, tt.code, status.ResultCode)
		})
	}
}

func TestMpesaService_MissingCredentials(t *testing.T) {
	svc := NewMpesaService(MpesaConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := svc.InitiateSTKPush(context.Background(), STKPushParams{PhoneNumber: "254712345678", Amount: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MPESA_CONSUMER_KEY")
}
