package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

// PackageService maintains the subscription package catalogue
type PackageService struct {
	store *repositories.Store
}

func NewPackageService(store *repositories.Store) *PackageService {
	return &PackageService{store: store}
}

func (s *PackageService) List(ctx context.Context, activeOnly bool) ([]models.SubscriptionPackage, error) {
	pkgs, err := s.store.Packages.List(ctx, activeOnly)
	if err != nil {
		return nil, ErrInternal("Failed to list packages", err)
	}
	return pkgs, nil
}

func (s *PackageService) Get(ctx context.Context, packageID string) (*models.SubscriptionPackage, error) {
	id, err := primitive.ObjectIDFromHex(packageID)
	if err != nil {
		return nil, ErrBadRequest("Invalid package ID")
	}
	pkg, err := s.store.Packages.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Subscription package not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load package", err)
	}
	return pkg, nil
}

func applyPackage(pkg *models.SubscriptionPackage, req models.PackageRequest) error {
	if _, err := CalculateEndDate(time.Now(), req.Duration, req.DurationUnit); err != nil {
		return ErrBadRequest("Invalid package duration")
	}
	pkg.Name = utils.SanitizeInput(req.Name)
	pkg.Description = utils.SanitizeInput(req.Description)
	pkg.Price = req.Price
	pkg.Currency = req.Currency
	if pkg.Currency == "" {
		pkg.Currency = defaultCurrency
	}
	pkg.Duration = req.Duration
	pkg.DurationUnit = req.DurationUnit
	pkg.Features = utils.SanitizeStringArray(req.Features)
	pkg.ProductLimit = req.ProductLimit
	pkg.FeaturedProductsLimit = req.FeaturedProductsLimit
	pkg.Priority = req.Priority
	if req.IsActive != nil {
		pkg.IsActive = *req.IsActive
	}
	return nil
}

func (s *PackageService) Create(ctx context.Context, req models.PackageRequest) (*models.SubscriptionPackage, error) {
	pkg := &models.SubscriptionPackage{IsActive: true}
	if err := applyPackage(pkg, req); err != nil {
		return nil, err
	}
	if err := s.store.Packages.Create(ctx, pkg); err != nil {
		return nil, ErrInternal("Failed to create package", err)
	}
	return pkg, nil
}

func (s *PackageService) Update(ctx context.Context, packageID string, req models.PackageRequest) (*models.SubscriptionPackage, error) {
	pkg, err := s.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if err := applyPackage(pkg, req); err != nil {
		return nil, err
	}
	if err := s.store.Packages.Update(ctx, pkg); err != nil {
		return nil, ErrInternal("Failed to update package", err)
	}
	return pkg, nil
}

// Delete removes a package nobody holds; otherwise it is only deactivated
// so existing subscriptions keep resolving their limits.
func (s *PackageService) Delete(ctx context.Context, packageID string) error {
	pkg, err := s.Get(ctx, packageID)
	if err != nil {
		return err
	}
	_, holders, err := s.store.Subscriptions.List(ctx, repositories.SubscriptionFilter{
		Package: &pkg.ID,
		Status:  models.SubscriptionStatusActive,
		Page:    repositories.Page{Limit: 1},
	})
	if err != nil {
		return ErrInternal("Failed to check package usage", err)
	}
	if holders > 0 {
		pkg.IsActive = false
		if err := s.store.Packages.Update(ctx, pkg); err != nil {
			return ErrInternal("Failed to deactivate package", err)
		}
		return nil
	}
	if err := s.store.Packages.Delete(ctx, pkg.ID); err != nil {
		return ErrInternal("Failed to delete package", err)
	}
	return nil
}
