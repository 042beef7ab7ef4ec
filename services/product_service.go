package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

const maxProductImages = 8

// ProductService manages the catalogue and enforces the listing limits that
// a merchant's subscription package grants.
type ProductService struct {
	store         *repositories.Store
	subscriptions *SubscriptionService
	files         FileStore
	defaultLimit  int
}

func NewProductService(store *repositories.Store, subscriptions *SubscriptionService, files FileStore, defaultLimit int) *ProductService {
	return &ProductService{store: store, subscriptions: subscriptions, files: files, defaultLimit: defaultLimit}
}

// ProductLimits is what a merchant may list. Products <= 0 means unlimited.
type ProductLimits struct {
	Products int `json:"products"`
	Featured int `json:"featured"`
}

// Limits resolves the merchant's allowance from the active package, falling
// back to the default allowance without one.
func (s *ProductService) Limits(ctx context.Context, merchantID primitive.ObjectID) (ProductLimits, error) {
	_, pkg, err := s.subscriptions.CurrentSubscription(ctx, merchantID)
	if err != nil {
		return ProductLimits{}, err
	}
	if pkg == nil {
		return ProductLimits{Products: s.defaultLimit}, nil
	}
	return ProductLimits{Products: pkg.ProductLimit, Featured: pkg.FeaturedProductsLimit}, nil
}

// checkLimits verifies that making a product active and/or featured stays
// within the allowance. Counts exclude the product itself when it already holds that state.
func (s *ProductService) checkLimits(ctx context.Context, merchantID primitive.ObjectID, addActive, addFeatured bool) error {
	if !addActive && !addFeatured {
		return nil
	}
	limits, err := s.Limits(ctx, merchantID)
	if err != nil {
		return err
	}
	if addActive && limits.Products > 0 {
		count, err := s.store.Products.CountByMerchant(ctx, merchantID, false)
		if err != nil {
			return ErrInternal("Failed to count products", err)
		}
		if count >= int64(limits.Products) {
			return ErrForbidden(fmt.Sprintf("Product limit of %d reached. Upgrade your subscription to list more products", limits.Products))
		}
	}
	if addFeatured {
		count, err := s.store.Products.CountByMerchant(ctx, merchantID, true)
		if err != nil {
			return ErrInternal("Failed to count featured products", err)
		}
		if count >= int64(limits.Featured) {
			return ErrForbidden(fmt.Sprintf("Featured product limit of %d reached", limits.Featured))
		}
	}
	return nil
}

func (s *ProductService) List(ctx context.Context, filter repositories.ProductFilter) ([]models.Product, int64, error) {
	products, total, err := s.store.Products.List(ctx, filter)
	if err != nil {
		return nil, 0, ErrInternal("Failed to list products", err)
	}
	return products, total, nil
}

func (s *ProductService) load(ctx context.Context, productID string) (*models.Product, error) {
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
	return product, nil
}

// Get returns a product. Inactive products are only visible to their owner and admins.
func (s *ProductService) Get(ctx context.Context, p *Principal, productID string) (*models.Product, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive && (p == nil || (!p.IsAdmin() && p.UserID != product.Merchant)) {
		return nil, ErrNotFound("Product not found")
	}
	return product, nil
}

func (s *ProductService) owned(ctx context.Context, p Principal, productID string) (*models.Product, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && product.Merchant != p.UserID {
		return nil, ErrForbidden("Not authorized to modify this product")
	}
	return product, nil
}

func validatePricing(req models.ProductRequest) error {
	if req.DiscountPrice > 0 && req.DiscountPrice >= req.Price {
		return ErrBadRequest("Discount price must be lower than price")
	}
	return nil
}

// Create lists a new product for the calling merchant
func (s *ProductService) Create(ctx context.Context, p Principal, req models.ProductRequest) (*models.Product, error) {
	if !p.IsMerchant() {
		return nil, ErrForbidden("Only merchants can create products")
	}
	if err := validatePricing(req); err != nil {
		return nil, err
	}

	active := req.IsActive == nil || *req.IsActive
	if err := s.checkLimits(ctx, p.UserID, active, active && req.IsFeatured); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:          utils.SanitizeInput(req.Name),
		Description:   utils.SanitizeInput(req.Description),
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Category:      strings.ToLower(strings.TrimSpace(req.Category)),
		Images:        req.Images,
		Stock:         req.Stock,
		Merchant:      p.UserID,
		IsActive:      active,
		IsFeatured:    active && req.IsFeatured,
	}
	if product.Images == nil {
		product.Images = []string{}
	}
	if err := s.store.Products.Create(ctx, product); err != nil {
		return nil, ErrInternal("Failed to create product", err)
	}
	return product, nil
}

// Update replaces the editable fields of an owned product
func (s *ProductService) Update(ctx context.Context, p Principal, productID string, req models.ProductRequest) (*models.Product, error) {
	product, err := s.owned(ctx, p, productID)
	if err != nil {
		return nil, err
	}
	if err := validatePricing(req); err != nil {
		return nil, err
	}

	active := product.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}
	featured := active && req.IsFeatured

	if !p.IsAdmin() {
		addActive := active && !product.IsActive
		addFeatured := featured && !(product.IsFeatured && product.IsActive)
		if err := s.checkLimits(ctx, product.Merchant, addActive, addFeatured); err != nil {
			return nil, err
		}
	}

	product.Name = utils.SanitizeInput(req.Name)
	product.Description = utils.SanitizeInput(req.Description)
	product.Price = req.Price
	product.DiscountPrice = req.DiscountPrice
	product.Category = strings.ToLower(strings.TrimSpace(req.Category))
	product.Stock = req.Stock
	product.IsActive = active
	product.IsFeatured = featured
	if req.Images != nil {
		product.Images = req.Images
	}

	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, ErrInternal("Failed to update product", err)
	}
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, p Principal, productID string) error {
	product, err := s.owned(ctx, p, productID)
	if err != nil {
		return err
	}
	if err := s.store.Products.Delete(ctx, product.ID); err != nil {
		return ErrInternal("Failed to delete product", err)
	}
	for _, url := range product.Images {
		s.deleteImageFiles(ctx, url)
	}
	return nil
}

func thumbnailURL(url string) string {
	return strings.TrimSuffix(url, ".jpg") + "_thumb.jpg"
}

// deleteImageFiles removes an image and its thumbnail. Storage errors are
// only logged since the product no longer references the files.
func (s *ProductService) deleteImageFiles(ctx context.Context, url string) {
	for _, u := range []string{url, thumbnailURL(url)} {
		if err := s.files.Delete(ctx, u); err != nil {
			log.Printf("Failed to delete product image %s: %v", u, err)
		}
	}
}

// RemoveImage detaches an image from a product and deletes its files
func (s *ProductService) RemoveImage(ctx context.Context, p Principal, productID, imageURL string) (*models.Product, error) {
	product, err := s.owned(ctx, p, productID)
	if err != nil {
		return nil, err
	}
	kept := product.Images[:0]
	found := false
	for _, url := range product.Images {
		if url == imageURL {
			found = true
			continue
		}
		kept = append(kept, url)
	}
	if !found {
		return nil, ErrNotFound("Image not found")
	}
	product.Images = kept
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, ErrInternal("Failed to update product", err)
	}
	s.deleteImageFiles(ctx, imageURL)
	return product, nil
}

// AddImage resizes an upload, stores it with a thumbnail and appends it to the product
func (s *ProductService) AddImage(ctx context.Context, p Principal, productID, filename string, data []byte) (*models.Product, error) {
	product, err := s.owned(ctx, p, productID)
	if err != nil {
		return nil, err
	}
	if len(product.Images) >= maxProductImages {
		return nil, ErrBadRequest(fmt.Sprintf("A product can have at most %d images", maxProductImages))
	}

	processed, err := utils.ProcessImage(data, filename)
	if err != nil {
		return nil, ErrBadRequest(err.Error())
	}

	key := utils.UniqueKey("products/"+product.ID.Hex(), "image.jpg")
	url, err := s.files.Save(ctx, key, processed.Full, "image/jpeg")
	if err != nil {
		return nil, ErrInternal("Failed to store image", err)
	}
	thumbKey := strings.TrimSuffix(key, ".jpg") + "_thumb.jpg"
	if _, err := s.files.Save(ctx, thumbKey, processed.Thumbnail, "image/jpeg"); err != nil {
		return nil, ErrInternal("Failed to store thumbnail", err)
	}

	product.Images = append(product.Images, url)
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, ErrInternal("Failed to update product", err)
	}
	return product, nil
}

// ToggleActive flips a product's visibility from the admin dashboard
func (s *ProductService) ToggleActive(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.IsActive = !product.IsActive
	if !product.IsActive {
		product.IsFeatured = false
	}
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, ErrInternal("Failed to update product", err)
	}
	return product, nil
}

// SetFeatured features or unfeatures a product from the admin dashboard
func (s *ProductService) SetFeatured(ctx context.Context, productID string, featured bool) (*models.Product, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if featured && !product.IsActive {
		return nil, ErrBadRequest("Only active products can be featured")
	}
	product.IsFeatured = featured
	if err := s.store.Products.Update(ctx, product); err != nil {
		return nil, ErrInternal("Failed to update product", err)
	}
	return product, nil
}
