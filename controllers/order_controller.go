package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
)

type OrderController struct {
	orders   *services.OrderService
	payments *services.PaymentReconciler
}

func NewOrderController(orders *services.OrderService, payments *services.PaymentReconciler) *OrderController {
	return &OrderController{orders: orders, payments: payments}
}

// CreateOrder places an order from the body items or, when empty, the cart
func (oc *OrderController) CreateOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.CreateOrderRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := oc.orders.CreateOrder(ctx, p, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, res.Message, res)
}

// ListOrders is scoped by role: own orders, orders with own products, or all
func (oc *OrderController) ListOrders(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := repositories.OrderFilter{Status: c.QueryParam("status"), Page: queryPage(c)}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	orders, total, err := oc.orders.ListOrders(ctx, p, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Orders retrieved successfully", orders, total, filter.Page)
}

// ListMyOrders returns the orders the caller placed, whatever the role
func (oc *OrderController) ListMyOrders(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	page := queryPage(c)

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	orders, total, err := oc.orders.ListMyOrders(ctx, p, page)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Orders retrieved successfully", orders, total, page)
}

func (oc *OrderController) GetOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	order, err := oc.orders.GetOrder(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Order retrieved successfully", order)
}

func (oc *OrderController) CancelOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	order, err := oc.orders.CancelOrder(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Order cancelled successfully", order)
}

func (oc *OrderController) UpdateOrderStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.UpdateOrderStatusRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	order, err := oc.orders.UpdateOrderStatus(ctx, p, c.Param("id"), req.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Order status updated", order)
}

// PaymentStatus polls the provider for a pending M-Pesa order payment
func (oc *OrderController) PaymentStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := oc.payments.CheckOrderPaymentStatus(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Payment status retrieved", res)
}
