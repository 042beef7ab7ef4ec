package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/services"
)

type CartController struct {
	carts *services.CartService
}

func NewCartController(carts *services.CartService) *CartController {
	return &CartController{carts: carts}
}

func (cc *CartController) GetCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	cart, err := cc.carts.GetCart(ctx, p.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Cart retrieved successfully", cart)
}

func (cc *CartController) AddItem(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.CartItemRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	cart, err := cc.carts.AddItem(ctx, p.UserID, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Item added to cart", cart)
}

// UpdateItem sets the quantity of a line; zero removes it
func (cc *CartController) UpdateItem(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.CartItemRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	cart, err := cc.carts.UpdateItem(ctx, p.UserID, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Cart updated", cart)
}

func (cc *CartController) RemoveItem(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	cart, err := cc.carts.RemoveItem(ctx, p.UserID, c.Param("productId"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Item removed from cart", cart)
}

func (cc *CartController) ClearCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := cc.carts.Clear(ctx, p.UserID); err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Cart cleared", nil)
}
