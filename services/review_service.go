package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

type ReviewService struct {
	store    *repositories.Store
	notifier *Notifier
}

func NewReviewService(store *repositories.Store, notifier *Notifier) *ReviewService {
	return &ReviewService{store: store, notifier: notifier}
}

// Create posts the caller's single review of a product. Reviews are
// published immediately and can be rejected by moderation afterwards.
func (s *ReviewService) Create(ctx context.Context, p Principal, req models.CreateReviewRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrBadRequest("Rating must be between 1 and 5")
	}
	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		return nil, ErrBadRequest("Invalid product ID")
	}
	product, err := s.store.Products.FindByID(ctx, productID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Product not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load product", err)
	}
	if product.Merchant == p.UserID {
		return nil, ErrBadRequest("You cannot review your own product")
	}

	if _, err := s.store.Reviews.FindByUserAndProduct(ctx, p.UserID, productID); err == nil {
		return nil, ErrBadRequest("You have already reviewed this product")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInternal("Failed to check existing review", err)
	}

	verified, err := s.store.Orders.HasDeliveredItem(ctx, p.UserID, productID)
	if err != nil {
		return nil, ErrInternal("Failed to check purchase history", err)
	}

	review := &models.Review{
		Product:            productID,
		Merchant:           product.Merchant,
		User:               p.UserID,
		Rating:             req.Rating,
		Comment:            utils.SanitizeInput(req.Comment),
		IsVerifiedPurchase: verified,
		Status:             models.ReviewStatusApproved,
	}
	if err := s.store.Reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrBadRequest("You have already reviewed this product")
		}
		return nil, ErrInternal("Failed to create review", err)
	}
	if err := s.refreshRating(ctx, productID); err != nil {
		return nil, err
	}

	data := map[string]string{"reviewId": review.ID.Hex(), "productId": productID.Hex()}
	s.notifier.NotifyUser(ctx, product.Merchant, events.ReviewCreated, "New review",
		fmt.Sprintf("%s received a %d star review", product.Name, review.Rating), data)
	s.notifier.NotifyAdmins(ctx, events.ReviewCreated, "New review posted", data)
	return review, nil
}

func (s *ReviewService) refreshRating(ctx context.Context, productID primitive.ObjectID) error {
	avg, count, err := s.store.Reviews.RatingSummary(ctx, productID)
	if err != nil {
		return ErrInternal("Failed to compute rating", err)
	}
	err = s.store.Products.UpdateRating(ctx, productID, avg, count)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return ErrInternal("Failed to update product rating", err)
	}
	return nil
}

func (s *ReviewService) load(ctx context.Context, reviewID string) (*models.Review, error) {
	id, err := primitive.ObjectIDFromHex(reviewID)
	if err != nil {
		return nil, ErrBadRequest("Invalid review ID")
	}
	review, err := s.store.Reviews.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Review not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load review", err)
	}
	return review, nil
}

// ListForProduct returns the published reviews of a product
func (s *ReviewService) ListForProduct(ctx context.Context, productID string, page repositories.Page) ([]models.Review, int64, error) {
	id, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return nil, 0, ErrBadRequest("Invalid product ID")
	}
	reviews, total, err := s.store.Reviews.List(ctx, repositories.ReviewFilter{Product: &id, Status: models.ReviewStatusApproved, Page: page})
	if err != nil {
		return nil, 0, ErrInternal("Failed to list reviews", err)
	}
	return reviews, total, nil
}

// List is the moderation and merchant view. Merchants only see reviews of their own products.
func (s *ReviewService) List(ctx context.Context, p Principal, filter repositories.ReviewFilter) ([]models.Review, int64, error) {
	if !p.IsAdmin() {
		filter.Merchant = &p.UserID
	}
	reviews, total, err := s.store.Reviews.List(ctx, filter)
	if err != nil {
		return nil, 0, ErrInternal("Failed to list reviews", err)
	}
	return reviews, total, nil
}

// Reply lets the merchant answer a review of one of their products
func (s *ReviewService) Reply(ctx context.Context, p Principal, reviewID, message string) (*models.Review, error) {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && review.Merchant != p.UserID {
		return nil, ErrForbidden("Only the product's merchant can reply to this review")
	}
	review.Reply = &models.ReviewReply{Message: utils.SanitizeInput(message), CreatedAt: time.Now()}
	if err := s.store.Reviews.Update(ctx, review); err != nil {
		return nil, ErrInternal("Failed to save reply", err)
	}
	return review, nil
}

// SetStatus moderates a review and recomputes the product rating
func (s *ReviewService) SetStatus(ctx context.Context, reviewID, status string) (*models.Review, error) {
	switch status {
	case models.ReviewStatusPending, models.ReviewStatusApproved, models.ReviewStatusRejected:
	default:
		return nil, ErrBadRequest("Invalid review status")
	}
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	review.Status = status
	if err := s.store.Reviews.Update(ctx, review); err != nil {
		return nil, ErrInternal("Failed to update review", err)
	}
	if err := s.refreshRating(ctx, review.Product); err != nil {
		return nil, err
	}
	return review, nil
}

// Delete removes a review. Authors may delete their own; admins any.
func (s *ReviewService) Delete(ctx context.Context, p Principal, reviewID string) error {
	review, err := s.load(ctx, reviewID)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && review.User != p.UserID {
		return ErrForbidden("Not authorized to delete this review")
	}
	if err := s.store.Reviews.Delete(ctx, review.ID); err != nil {
		return ErrInternal("Failed to delete review", err)
	}
	return s.refreshRating(ctx, review.Product)
}
