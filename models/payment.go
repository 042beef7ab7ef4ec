package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction types
const (
	TransactionTypeSubscription        = "subscription"
	TransactionTypeSubscriptionRenewal = "subscription_renewal"
	TransactionTypeOrderPayment        = "order_payment"
)

// Transaction states
const (
	TransactionStatusPending    = "pending"
	TransactionStatusProcessing = "processing"
	TransactionStatusCompleted  = "completed"
	TransactionStatusFailed     = "failed"
	TransactionStatusRefunded   = "refunded"
)

// PaymentTransaction is one ledger row per payment attempt
type PaymentTransaction struct {
	ID                  primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	User                primitive.ObjectID  `json:"user" bson:"user"`
	Type                string              `json:"type" bson:"type"`
	Amount              float64             `json:"amount" bson:"amount"`
	Currency            string              `json:"currency" bson:"currency"`
	Status              string              `json:"status" bson:"status"`
	PaymentMethod       string              `json:"paymentMethod" bson:"paymentMethod"`
	RelatedSubscription *primitive.ObjectID `json:"relatedSubscription,omitempty" bson:"relatedSubscription,omitempty"`
	RelatedOrder        *primitive.ObjectID `json:"relatedOrder,omitempty" bson:"relatedOrder,omitempty"`
	MpesaDetails        *MpesaDetails       `json:"mpesaDetails,omitempty" bson:"mpesaDetails,omitempty"`
	CardDetails         *CardDetails        `json:"cardDetails,omitempty" bson:"cardDetails,omitempty"`
	TransactionID       string              `json:"transactionId" bson:"transactionId"`
	Notes               string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt           time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// IsFinal reports whether the transaction is settled. A failed one can still
// be completed by a late payment confirmation, which is then refunded.
func (t *PaymentTransaction) IsFinal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusRefunded:
		return true
	}
	return false
}

type MpesaDetails struct {
	PhoneNumber       string     `json:"phoneNumber" bson:"phoneNumber"`
	MerchantRequestID string     `json:"merchantRequestId,omitempty" bson:"merchantRequestId,omitempty"`
	CheckoutRequestID string     `json:"checkoutRequestId,omitempty" bson:"checkoutRequestId,omitempty"`
	ReceiptNumber     string     `json:"receiptNumber,omitempty" bson:"receiptNumber,omitempty"`
	ResultCode        *int       `json:"resultCode,omitempty" bson:"resultCode,omitempty"`
	ResultDesc        string     `json:"resultDesc,omitempty" bson:"resultDesc,omitempty"`
	TransactionDate   *time.Time `json:"transactionDate,omitempty" bson:"transactionDate,omitempty"`
}

type CardDetails struct {
	Last4    string `json:"last4,omitempty" bson:"last4,omitempty"`
	Brand    string `json:"brand,omitempty" bson:"brand,omitempty"`
	ChargeID string `json:"chargeId,omitempty" bson:"chargeId,omitempty"`
}

// VerifyPaymentRequest is an admin's manual payment confirmation
type VerifyPaymentRequest struct {
	ReceiptNumber string `json:"receiptNumber" validate:"required"`
}
