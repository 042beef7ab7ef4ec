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

// AdminService backs the admin dashboard: analytics, users, platform
// settings and flash sales.
type AdminService struct {
	store *repositories.Store
	now   func() time.Time
}

func NewAdminService(store *repositories.Store) *AdminService {
	return &AdminService{store: store, now: time.Now}
}

// Analytics gathers the dashboard totals
func (s *AdminService) Analytics(ctx context.Context) (*models.Analytics, error) {
	var (
		a   models.Analytics
		err error
	)
	wrap := func(err error) error { return ErrInternal("Failed to compute analytics", err) }

	if a.TotalUsers, err = s.store.Users.Count(ctx, repositories.UserFilter{}); err != nil {
		return nil, wrap(err)
	}
	if a.TotalMerchants, err = s.store.Users.Count(ctx, repositories.UserFilter{Role: models.RoleMerchant}); err != nil {
		return nil, wrap(err)
	}
	if a.VerifiedMerchants, err = s.store.Users.Count(ctx, repositories.UserFilter{Role: models.RoleMerchant, VerificationStatus: models.VerificationVerified}); err != nil {
		return nil, wrap(err)
	}
	if a.PendingMerchants, err = s.store.Users.Count(ctx, repositories.UserFilter{Role: models.RoleMerchant, VerificationStatus: models.VerificationPending}); err != nil {
		return nil, wrap(err)
	}
	if _, a.TotalProducts, err = s.store.Products.List(ctx, repositories.ProductFilter{Page: repositories.Page{Limit: 1}}); err != nil {
		return nil, wrap(err)
	}
	if a.OrdersByStatus, err = s.store.Orders.CountByStatus(ctx); err != nil {
		return nil, wrap(err)
	}
	for _, n := range a.OrdersByStatus {
		a.TotalOrders += n
	}
	if a.OrderRevenue, err = s.store.Orders.PaidRevenue(ctx); err != nil {
		return nil, wrap(err)
	}
	if a.ActiveSubscriptions, err = s.store.Subscriptions.CountActive(ctx, s.now()); err != nil {
		return nil, wrap(err)
	}
	if a.SubscriptionRevenue, err = s.store.Transactions.SumCompleted(ctx, models.TransactionTypeSubscription, models.TransactionTypeSubscriptionRenewal); err != nil {
		return nil, wrap(err)
	}
	return &a, nil
}

func (s *AdminService) ListUsers(ctx context.Context, filter repositories.UserFilter) ([]models.User, int64, error) {
	users, total, err := s.store.Users.List(ctx, filter)
	if err != nil {
		return nil, 0, ErrInternal("Failed to list users", err)
	}
	return users, total, nil
}

// ToggleUserActive suspends or restores an account. Admins cannot suspend themselves.
func (s *AdminService) ToggleUserActive(ctx context.Context, p Principal, userID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrBadRequest("Invalid user ID")
	}
	if id == p.UserID {
		return nil, ErrBadRequest("You cannot deactivate your own account")
	}
	user, err := s.store.Users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("User not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load user", err)
	}
	user.IsActive = !user.IsActive
	if err := s.store.Users.Update(ctx, user); err != nil {
		return nil, ErrInternal("Failed to update user", err)
	}
	return user, nil
}

func (s *AdminService) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings, err := s.store.Settings.Get(ctx)
	if err != nil {
		return nil, ErrInternal("Failed to load settings", err)
	}
	return settings, nil
}

func (s *AdminService) SaveSettings(ctx context.Context, req models.SettingsRequest) (*models.Settings, error) {
	settings, err := s.store.Settings.Get(ctx)
	if err != nil {
		return nil, ErrInternal("Failed to load settings", err)
	}
	settings.SiteName = utils.SanitizeInput(req.SiteName)
	settings.ContactEmail = req.ContactEmail
	settings.ContactPhone = req.ContactPhone
	settings.MaintenanceMode = req.MaintenanceMode
	settings.AllowRegistrations = req.AllowRegistrations
	settings.CommissionRate = req.CommissionRate
	if err := s.store.Settings.Save(ctx, settings); err != nil {
		return nil, ErrInternal("Failed to save settings", err)
	}
	return settings, nil
}

// ListFlashSales returns every sale, or only running ones when runningOnly is set
func (s *AdminService) ListFlashSales(ctx context.Context, runningOnly bool) ([]models.FlashSale, error) {
	var at *time.Time
	if runningOnly {
		now := s.now()
		at = &now
	}
	sales, err := s.store.FlashSales.List(ctx, at)
	if err != nil {
		return nil, ErrInternal("Failed to list flash sales", err)
	}
	return sales, nil
}

func (s *AdminService) applyFlashSale(ctx context.Context, sale *models.FlashSale, req models.FlashSaleRequest) error {
	if !req.EndDate.After(req.StartDate) {
		return ErrBadRequest("End date must be after start date")
	}
	if len(req.Products) == 0 {
		return ErrBadRequest("A flash sale needs at least one product")
	}

	previousSold := map[primitive.ObjectID]int{}
	for _, p := range sale.Products {
		previousSold[p.Product] = p.Sold
	}

	products := make([]models.FlashSaleProduct, 0, len(req.Products))
	for _, item := range req.Products {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return ErrBadRequest("Invalid product ID")
		}
		product, err := s.store.Products.FindByID(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound("Product not found")
		}
		if err != nil {
			return ErrInternal("Failed to load product", err)
		}
		if item.SalePrice <= 0 || item.SalePrice >= product.Price {
			return ErrBadRequest("Sale price must be below the regular price of " + product.Name)
		}
		products = append(products, models.FlashSaleProduct{
			Product:   id,
			SalePrice: item.SalePrice,
			Quantity:  item.Quantity,
			Sold:      previousSold[id],
		})
	}

	sale.Name = utils.SanitizeInput(req.Name)
	sale.Description = utils.SanitizeInput(req.Description)
	sale.StartDate = req.StartDate
	sale.EndDate = req.EndDate
	sale.Products = products
	if req.IsActive != nil {
		sale.IsActive = *req.IsActive
	}
	return nil
}

func (s *AdminService) CreateFlashSale(ctx context.Context, req models.FlashSaleRequest) (*models.FlashSale, error) {
	sale := &models.FlashSale{IsActive: true}
	if err := s.applyFlashSale(ctx, sale, req); err != nil {
		return nil, err
	}
	if err := s.store.FlashSales.Create(ctx, sale); err != nil {
		return nil, ErrInternal("Failed to create flash sale", err)
	}
	return sale, nil
}

func (s *AdminService) loadFlashSale(ctx context.Context, saleID string) (*models.FlashSale, error) {
	id, err := primitive.ObjectIDFromHex(saleID)
	if err != nil {
		return nil, ErrBadRequest("Invalid flash sale ID")
	}
	sale, err := s.store.FlashSales.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Flash sale not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load flash sale", err)
	}
	return sale, nil
}

func (s *AdminService) UpdateFlashSale(ctx context.Context, saleID string, req models.FlashSaleRequest) (*models.FlashSale, error) {
	sale, err := s.loadFlashSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := s.applyFlashSale(ctx, sale, req); err != nil {
		return nil, err
	}
	if err := s.store.FlashSales.Update(ctx, sale); err != nil {
		return nil, ErrInternal("Failed to update flash sale", err)
	}
	return sale, nil
}

func (s *AdminService) DeleteFlashSale(ctx context.Context, saleID string) error {
	sale, err := s.loadFlashSale(ctx, saleID)
	if err != nil {
		return err
	}
	if err := s.store.FlashSales.Delete(ctx, sale.ID); err != nil {
		return ErrInternal("Failed to delete flash sale", err)
	}
	return nil
}
