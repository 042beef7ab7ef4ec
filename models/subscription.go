package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Package duration units
const (
	DurationDay   = "day"
	DurationWeek  = "week"
	DurationMonth = "month"
	DurationYear  = "year"
)

// Vendor subscription states
const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Payment states shared by subscriptions and orders
const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Subscription payment methods
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCard  = "card"
	PaymentMethodAdmin = "admin"
)

// SubscriptionPackage is an admin-defined tier merchants can buy
type SubscriptionPackage struct {
	ID                    primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name                  string             `json:"name" bson:"name"`
	Description           string             `json:"description" bson:"description"`
	Price                 float64            `json:"price" bson:"price"`
	Currency              string             `json:"currency" bson:"currency"`
	Duration              int                `json:"duration" bson:"duration"`
	DurationUnit          string             `json:"durationUnit" bson:"durationUnit"`
	Features              []string           `json:"features" bson:"features"`
	ProductLimit          int                `json:"productLimit" bson:"productLimit"`
	FeaturedProductsLimit int                `json:"featuredProductsLimit" bson:"featuredProductsLimit"`
	Priority              int                `json:"priority" bson:"priority"`
	IsActive              bool               `json:"isActive" bson:"isActive"`
	CreatedAt             time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// VendorSubscription is a merchant's paid access to a package
type VendorSubscription struct {
	ID                      primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	Vendor                  primitive.ObjectID  `json:"vendor" bson:"vendor"`
	Package                 primitive.ObjectID  `json:"package" bson:"package"`
	StartDate               time.Time           `json:"startDate" bson:"startDate"`
	EndDate                 time.Time           `json:"endDate" bson:"endDate"`
	Status                  string              `json:"status" bson:"status"`
	PaymentStatus           string              `json:"paymentStatus" bson:"paymentStatus"`
	PaymentMethod           string              `json:"paymentMethod" bson:"paymentMethod"`
	PaymentDetails          PaymentDetails      `json:"paymentDetails" bson:"paymentDetails"`
	AutoRenew               bool                `json:"autoRenew" bson:"autoRenew"`
	PreviousSubscription    *primitive.ObjectID `json:"previousSubscription,omitempty" bson:"previousSubscription,omitempty"`
	LastRenewalNotification *time.Time          `json:"lastRenewalNotification,omitempty" bson:"lastRenewalNotification,omitempty"`
	CancelledAt             *time.Time          `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	CreatedAt               time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt               time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// PaymentDetails records the confirmed payment of a subscription
type PaymentDetails struct {
	TransactionID string     `json:"transactionId,omitempty" bson:"transactionId,omitempty"`
	Amount        float64    `json:"amount" bson:"amount"`
	Currency      string     `json:"currency,omitempty" bson:"currency,omitempty"`
	PaymentDate   *time.Time `json:"paymentDate,omitempty" bson:"paymentDate,omitempty"`
	ReceiptNumber string     `json:"receiptNumber,omitempty" bson:"receiptNumber,omitempty"`
}

// IsEntitled reports whether the subscription grants access at the given instant.
// Expiry is derived from EndDate even before the sweep flips the stored status.
func (s *VendorSubscription) IsEntitled(at time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(at)
}

type SubscribeRequest struct {
	PackageID     string `json:"packageId" validate:"required"`
	VendorID      string `json:"vendorId,omitempty"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	CardToken     string `json:"cardToken,omitempty"`
	AutoRenew     bool   `json:"autoRenew"`
}

type RenewRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	CardToken     string `json:"cardToken,omitempty"`
}

type PackageRequest struct {
	Name                  string   `json:"name" validate:"required,max=100"`
	Description           string   `json:"description"`
	Price                 float64  `json:"price" validate:"gte=0"`
	Currency              string   `json:"currency"`
	Duration              int      `json:"duration" validate:"required,gte=1"`
	DurationUnit          string   `json:"durationUnit" validate:"required,oneof=day week month year"`
	Features              []string `json:"features"`
	ProductLimit          int      `json:"productLimit" validate:"gte=0"`
	FeaturedProductsLimit int      `json:"featuredProductsLimit" validate:"gte=0"`
	Priority              int      `json:"priority"`
	IsActive              *bool    `json:"isActive,omitempty"`
}

type AutoRenewRequest struct {
	AutoRenew bool `json:"autoRenew"`
}
