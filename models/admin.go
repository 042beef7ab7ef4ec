package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FlashSale is a time boxed discount on a set of products
type FlashSale struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	StartDate   time.Time          `json:"startDate" bson:"startDate"`
	EndDate     time.Time          `json:"endDate" bson:"endDate"`
	Products    []FlashSaleProduct `json:"products" bson:"products"`
	IsActive    bool               `json:"isActive" bson:"isActive"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

type FlashSaleProduct struct {
	Product   primitive.ObjectID `json:"product" bson:"product"`
	SalePrice float64            `json:"salePrice" bson:"salePrice"`
	Quantity  int                `json:"quantity" bson:"quantity"`
	Sold      int                `json:"sold" bson:"sold"`
}

// IsRunning reports whether the sale is live at the given instant
func (f *FlashSale) IsRunning(at time.Time) bool {
	return f.IsActive && !at.Before(f.StartDate) && at.Before(f.EndDate)
}

type FlashSaleRequest struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Products    []struct {
		ProductID string  `json:"productId" validate:"required"`
		SalePrice float64 `json:"salePrice" validate:"gt=0"`
		Quantity  int     `json:"quantity" validate:"gte=1"`
	} `json:"products" validate:"required,min=1,dive"`
	IsActive *bool `json:"isActive,omitempty"`
}

// Settings is the single platform configuration document
type Settings struct {
	ID                 primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	SiteName           string             `json:"siteName" bson:"siteName"`
	ContactEmail       string             `json:"contactEmail" bson:"contactEmail"`
	ContactPhone       string             `json:"contactPhone" bson:"contactPhone"`
	MaintenanceMode    bool               `json:"maintenanceMode" bson:"maintenanceMode"`
	AllowRegistrations bool               `json:"allowRegistrations" bson:"allowRegistrations"`
	CommissionRate     float64            `json:"commissionRate" bson:"commissionRate"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// DefaultSettings is used until an admin saves settings for the first time
func DefaultSettings() *Settings {
	return &Settings{
		SiteName:           "Nairobi Verified",
		AllowRegistrations: true,
	}
}

type SettingsRequest struct {
	SiteName           string  `json:"siteName" validate:"required"`
	ContactEmail       string  `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone       string  `json:"contactPhone"`
	MaintenanceMode    bool    `json:"maintenanceMode"`
	AllowRegistrations bool    `json:"allowRegistrations"`
	CommissionRate     float64 `json:"commissionRate" validate:"gte=0,lte=1"`
}

type RejectMerchantRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Analytics is the admin dashboard summary
type Analytics struct {
	TotalUsers          int64            `json:"totalUsers"`
	TotalMerchants      int64            `json:"totalMerchants"`
	VerifiedMerchants   int64            `json:"verifiedMerchants"`
	PendingMerchants    int64            `json:"pendingMerchants"`
	TotalProducts       int64            `json:"totalProducts"`
	TotalOrders         int64            `json:"totalOrders"`
	OrdersByStatus      map[string]int64 `json:"ordersByStatus"`
	OrderRevenue        float64          `json:"orderRevenue"`
	ActiveSubscriptions int64            `json:"activeSubscriptions"`
	SubscriptionRevenue float64          `json:"subscriptionRevenue"`
}
