package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/middleware"
)

// RegisterOrderRoutes sets up carts and orders
func RegisterOrderRoutes(e *echo.Echo, c Controllers, d Deps) {
	cart := e.Group("/api/cart", d.Auth.Middleware(), middleware.RequireCapability(middleware.CapOrdersPlace))
	cart.GET("", c.Carts.GetCart)
	cart.POST("/items", c.Carts.AddItem)
	cart.PUT("/items/:productId", c.Carts.UpdateItem)
	cart.DELETE("/items/:productId", c.Carts.RemoveItem)
	cart.DELETE("", c.Carts.ClearCart)

	orders := e.Group("/api/orders", d.Auth.Middleware())
	orders.POST("", c.Orders.CreateOrder, middleware.RequireCapability(middleware.CapOrdersPlace))
	orders.GET("", c.Orders.ListOrders)
	orders.GET("/mine", c.Orders.ListMyOrders)
	orders.GET("/:id", c.Orders.GetOrder)
	orders.GET("/:id/payment-status", c.Orders.PaymentStatus)
	orders.POST("/:id/cancel", c.Orders.CancelOrder)
	orders.PUT("/:id/status", c.Orders.UpdateOrderStatus, middleware.RequireCapability(middleware.CapOrdersFulfil))
}
