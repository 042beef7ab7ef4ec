package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review moderation states
const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

// Review model
type Review struct {
	ID                 primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Product            primitive.ObjectID `json:"product" bson:"product"`
	Merchant           primitive.ObjectID `json:"merchant" bson:"merchant"`
	User               primitive.ObjectID `json:"user" bson:"user"`
	Rating             int                `json:"rating" bson:"rating"`
	Comment            string             `json:"comment" bson:"comment"`
	IsVerifiedPurchase bool               `json:"isVerifiedPurchase" bson:"isVerifiedPurchase"`
	Status             string             `json:"status" bson:"status"`
	Reply              *ReviewReply       `json:"reply,omitempty" bson:"reply,omitempty"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ReviewReply is the merchant's answer to a review
type ReviewReply struct {
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type CreateReviewRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=2000"`
}

type ReviewReplyRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type ReviewStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}
