package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
)

// RegisterCatalogRoutes sets up products, reviews and flash sales
func RegisterCatalogRoutes(e *echo.Echo, c Controllers, d Deps) {
	products := e.Group("/api/products")

	// Public
	products.GET("", c.Products.ListProducts)
	products.GET("/:id", c.Products.GetProduct, d.Auth.Optional())
	products.GET("/:id/reviews", c.Reviews.GetProductReviews)

	// Merchant
	manage := products.Group("", d.Auth.Middleware(), middleware.RequireCapability(middleware.CapProductsManage))
	manage.GET("/mine", c.Products.ListMyProducts)
	manage.GET("/limits", c.Products.GetLimits)
	manage.POST("", c.Products.CreateProduct)
	manage.PUT("/:id", c.Products.UpdateProduct)
	manage.DELETE("/:id", c.Products.DeleteProduct)
	manage.POST("/:id/images", c.Products.UploadImage)
	manage.DELETE("/:id/images", c.Products.RemoveImage)

	reviews := e.Group("/api/reviews", d.Auth.Middleware())
	reviews.POST("", c.Reviews.CreateReview, middleware.RequireCapability(middleware.CapReviewsWrite))
	reviews.GET("/merchant", c.Reviews.ListReviews, middleware.RequireCapability(middleware.CapReviewsReply))
	reviews.POST("/:id/reply", c.Reviews.ReplyToReview, middleware.RequireCapability(middleware.CapReviewsReply))
	reviews.DELETE("/:id", c.Reviews.DeleteReview)

	e.GET("/api/flash-sales/active", c.Admin.ActiveFlashSales)
}
