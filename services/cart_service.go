package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

type CartService struct {
	store *repositories.Store
}

func NewCartService(store *repositories.Store) *CartService {
	return &CartService{store: store}
}

// GetCart returns the user's cart, empty when none was saved yet
func (s *CartService) GetCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	cart, err := s.store.Carts.FindByUser(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.Cart{User: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, ErrInternal("Failed to load cart", err)
	}
	return cart, nil
}

func (s *CartService) availableProduct(ctx context.Context, productID string, quantity int) (*models.Product, error) {
	id, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrBadRequest("Invalid product ID")
	}
	product, err := s.store.Products.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Product not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load product", err)
	}
	if !product.IsActive {
		return nil, ErrBadRequest("Product is not available")
	}
	if quantity > product.Stock {
		return nil, ErrBadRequest("Requested quantity exceeds available stock")
	}
	return product, nil
}

// AddItem adds quantity of a product, capturing its current price
func (s *CartService) AddItem(ctx context.Context, userID primitive.ObjectID, req models.CartItemRequest) (*models.Cart, error) {
	if req.Quantity < 1 {
		return nil, ErrBadRequest("Quantity must be at least 1")
	}
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	idx := -1
	for i, item := range cart.Items {
		if item.Product.Hex() == req.ProductID {
			idx = i
			quantity += item.Quantity
			break
		}
	}

	product, err := s.availableProduct(ctx, req.ProductID, quantity)
	if err != nil {
		return nil, err
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = quantity
		cart.Items[idx].Price = product.UnitPrice()
	} else {
		cart.Items = append(cart.Items, models.CartItem{Product: product.ID, Quantity: quantity, Price: product.UnitPrice()})
	}

	if err := s.store.Carts.Save(ctx, cart); err != nil {
		return nil, ErrInternal("Failed to save cart", err)
	}
	return cart, nil
}

// UpdateItem sets the quantity of a line; zero removes it
func (s *CartService) UpdateItem(ctx context.Context, userID primitive.ObjectID, req models.CartItemRequest) (*models.Cart, error) {
	if req.Quantity < 0 {
		return nil, ErrBadRequest("Quantity cannot be negative")
	}
	if req.Quantity == 0 {
		return s.RemoveItem(ctx, userID, req.ProductID)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, item := range cart.Items {
		if item.Product.Hex() == req.ProductID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound("Item not in cart")
	}

	if _, err := s.availableProduct(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, err
	}
	cart.Items[idx].Quantity = req.Quantity

	if err := s.store.Carts.Save(ctx, cart); err != nil {
		return nil, ErrInternal("Failed to save cart", err)
	}
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID primitive.ObjectID, productID string) (*models.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := cart.Items[:0]
	for _, item := range cart.Items {
		if item.Product.Hex() != productID {
			items = append(items, item)
		}
	}
	cart.Items = items

	if err := s.store.Carts.Save(ctx, cart); err != nil {
		return nil, ErrInternal("Failed to save cart", err)
	}
	return cart, nil
}

func (s *CartService) Clear(ctx context.Context, userID primitive.ObjectID) error {
	if err := s.store.Carts.Clear(ctx, userID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return ErrInternal("Failed to clear cart", err)
	}
	return nil
}
