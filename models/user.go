// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

// Merchant verification states
const (
	VerificationUnsubmitted = "unsubmitted"
	VerificationPending     = "pending"
	VerificationVerified    = "verified"
	VerificationRejected    = "rejected"
)

// User represents a customer, merchant or admin account
type User struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	FirstName string             `json:"firstName" bson:"firstName"`
	LastName  string             `json:"lastName" bson:"lastName"`
	Email     string             `json:"email" bson:"email"`
	Password  string             `json:"-" bson:"password"`
	Phone     string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Role      string             `json:"role" bson:"role"`
	IsActive  bool               `json:"isActive" bson:"isActive"`
	FCMToken  string             `json:"-" bson:"fcmToken,omitempty"`

	// Merchant fields
	BusinessName       string             `json:"businessName,omitempty" bson:"businessName,omitempty"`
	BusinessAddress    string             `json:"businessAddress,omitempty" bson:"businessAddress,omitempty"`
	BusinessType       string             `json:"businessType,omitempty" bson:"businessType,omitempty"`
	VerificationStatus string             `json:"verificationStatus,omitempty" bson:"verificationStatus,omitempty"`
	IsVerified         bool               `json:"isVerified" bson:"isVerified"`
	VerifiedAt         *time.Time         `json:"verifiedAt,omitempty" bson:"verifiedAt,omitempty"`
	RejectionReason    string             `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	Documents          []MerchantDocument `json:"documents,omitempty" bson:"documents,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// MerchantDocument is an uploaded verification document
type MerchantDocument struct {
	Type       string    `json:"type" bson:"type"`
	URL        string    `json:"url" bson:"url"`
	UploadedAt time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

// FullName returns the display name of the user
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsMerchant reports whether the user sells on the platform
func (u *User) IsMerchant() bool {
	return u.Role == RoleMerchant
}
