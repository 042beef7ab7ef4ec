package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is an item listed by a merchant
type Product struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name          string             `json:"name" bson:"name"`
	Description   string             `json:"description" bson:"description"`
	Price         float64            `json:"price" bson:"price"`
	DiscountPrice float64            `json:"discountPrice,omitempty" bson:"discountPrice,omitempty"`
	Category      string             `json:"category" bson:"category"`
	Images        []string           `json:"images" bson:"images"`
	Stock         int                `json:"stock" bson:"stock"`
	Merchant      primitive.ObjectID `json:"merchant" bson:"merchant"`
	IsActive      bool               `json:"isActive" bson:"isActive"`
	IsFeatured    bool               `json:"isFeatured" bson:"isFeatured"`
	Rating        float64            `json:"rating" bson:"rating"`
	NumReviews    int                `json:"numReviews" bson:"numReviews"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// UnitPrice is the price a buyer pays right now
func (p *Product) UnitPrice() float64 {
	if p.DiscountPrice > 0 && p.DiscountPrice < p.Price {
		return p.DiscountPrice
	}
	return p.Price
}

type ProductRequest struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=5000"`
	Price         float64  `json:"price" validate:"required,gt=0"`
	DiscountPrice float64  `json:"discountPrice" validate:"gte=0"`
	Category      string   `json:"category" validate:"required"`
	Images        []string `json:"images"`
	Stock         int      `json:"stock" validate:"gte=0"`
	IsActive      *bool    `json:"isActive,omitempty"`
	IsFeatured    bool     `json:"isFeatured"`
}

type FeatureProductRequest struct {
	Featured bool `json:"featured"`
}
