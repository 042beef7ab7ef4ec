// controllers/review_controller.go
package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
)

type ReviewController struct {
	reviews *services.ReviewService
}

func NewReviewController(reviews *services.ReviewService) *ReviewController {
	return &ReviewController{reviews: reviews}
}

// GetProductReviews retrieves the published reviews of a product
func (rc *ReviewController) GetProductReviews(c echo.Context) error {
	page := queryPage(c)

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	reviews, total, err := rc.reviews.ListForProduct(ctx, c.Param("id"), page)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Reviews retrieved successfully", reviews, total, page)
}

// CreateReview adds a review for a product
func (rc *ReviewController) CreateReview(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.CreateReviewRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	review, err := rc.reviews.Create(ctx, p, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, "Review submitted successfully", review)
}

// ListReviews is the merchant and moderation view
func (rc *ReviewController) ListReviews(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := repositories.ReviewFilter{Status: c.QueryParam("status"), Page: queryPage(c)}
	if product := c.QueryParam("product"); product != "" {
		id, err := primitive.ObjectIDFromHex(product)
		if err != nil {
			return respondError(c, services.ErrBadRequest("Invalid product ID"))
		}
		filter.Product = &id
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	reviews, total, err := rc.reviews.List(ctx, p, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Reviews retrieved successfully", reviews, total, filter.Page)
}

// ReplyToReview lets a merchant answer a review of their product
func (rc *ReviewController) ReplyToReview(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.ReviewReplyRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	review, err := rc.reviews.Reply(ctx, p, c.Param("id"), req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Reply posted successfully", review)
}

func (rc *ReviewController) SetReviewStatus(c echo.Context) error {
	var req models.ReviewStatusRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	review, err := rc.reviews.SetStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Review status updated", review)
}

func (rc *ReviewController) DeleteReview(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := rc.reviews.Delete(ctx, p, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Review deleted successfully", nil)
}
