package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order fulfilment states
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Order payment methods
const (
	OrderPaymentMpesa          = "mpesa"
	OrderPaymentCard           = "card"
	OrderPaymentCashOnDelivery = "cash_on_delivery"
)

// Order sources
const (
	OrderSourceCart   = "cart"
	OrderSourceDirect = "direct"
)

// Order is a customer purchase. Items snapshot price and merchant at purchase time.
type Order struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OrderNumber     string             `json:"orderNumber" bson:"orderNumber"`
	User            primitive.ObjectID `json:"user" bson:"user"`
	Items           []OrderItem        `json:"items" bson:"items"`
	ShippingAddress ShippingAddress    `json:"shippingAddress" bson:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod" bson:"paymentMethod"`
	PaymentStatus   string             `json:"paymentStatus" bson:"paymentStatus"`
	Status          string             `json:"status" bson:"status"`
	Source          string             `json:"source" bson:"source"`
	Subtotal        float64            `json:"subtotal" bson:"subtotal"`
	ShippingFee     float64            `json:"shippingFee" bson:"shippingFee"`
	Tax             float64            `json:"tax" bson:"tax"`
	Total           float64            `json:"total" bson:"total"`
	CancelledAt     *time.Time         `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty"`
	DeliveredAt     *time.Time         `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

type OrderItem struct {
	Product  primitive.ObjectID `json:"product" bson:"product"`
	Name     string             `json:"name" bson:"name"`
	Price    float64            `json:"price" bson:"price"`
	Quantity int                `json:"quantity" bson:"quantity"`
	Merchant primitive.ObjectID `json:"merchant" bson:"merchant"`
}

type ShippingAddress struct {
	FullName   string `json:"fullName" bson:"fullName" validate:"required"`
	Phone      string `json:"phone" bson:"phone" validate:"required"`
	Street     string `json:"street" bson:"street" validate:"required"`
	City       string `json:"city" bson:"city" validate:"required"`
	County     string `json:"county,omitempty" bson:"county,omitempty"`
	PostalCode string `json:"postalCode,omitempty" bson:"postalCode,omitempty"`
}

// HasMerchant reports whether any line of the order was sold by merchantID
func (o *Order) HasMerchant(merchantID primitive.ObjectID) bool {
	for _, item := range o.Items {
		if item.Merchant == merchantID {
			return true
		}
	}
	return false
}

type OrderLineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type CreateOrderRequest struct {
	Items           []OrderLineRequest `json:"items" validate:"dive"`
	ShippingAddress ShippingAddress    `json:"shippingAddress" validate:"required"`
	PaymentMethod   string             `json:"paymentMethod" validate:"required,oneof=mpesa card cash_on_delivery"`
	PhoneNumber     string             `json:"phoneNumber,omitempty"`
	CardToken       string             `json:"cardToken,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered"`
}
