package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrDuplicate         = errors.New("duplicate document")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Page limits a listing. Zero values mean first page, default limit.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Normalize clamps the page to sane bounds
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p Page) skip() int64 {
	return int64((p.Page - 1) * p.Limit)
}

type UserFilter struct {
	Role               string
	VerificationStatus string
	Search             string
	Page
}

type ProductFilter struct {
	Category   string
	Merchant   *primitive.ObjectID
	Search     string
	MinPrice   float64
	MaxPrice   float64
	Featured   *bool
	ActiveOnly bool
	Page
}

type OrderFilter struct {
	User     *primitive.ObjectID
	Merchant *primitive.ObjectID
	Status   string
	Page
}

type ReviewFilter struct {
	Product  *primitive.ObjectID
	Merchant *primitive.ObjectID
	Status   string
	Page
}

type SubscriptionFilter struct {
	Vendor  *primitive.ObjectID
	Package *primitive.ObjectID
	Status  string
	Page
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
	Count(ctx context.Context, filter UserFilter) (int64, error)
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error)
	// CountByMerchant counts the merchant's active products, optionally featured only.
	CountByMerchant(ctx context.Context, merchantID primitive.ObjectID, featuredOnly bool) (int64, error)
	// AdjustStock applies delta atomically. A negative delta fails with
	// ErrInsufficientStock instead of driving stock below zero.
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error
	UpdateRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error
}

type CartRepository interface {
	FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	// HasDeliveredItem reports whether userID received productID in a delivered order.
	HasDeliveredItem(ctx context.Context, userID, productID primitive.ObjectID) (bool, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	PaidRevenue(ctx context.Context) (float64, error)
}

type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error)
	FindByUserAndProduct(ctx context.Context, userID, productID primitive.ObjectID) (*models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, filter ReviewFilter) ([]models.Review, int64, error)
	// RatingSummary averages every review of the product that is not rejected.
	RatingSummary(ctx context.Context, productID primitive.ObjectID) (float64, int, error)
}

type PackageRepository interface {
	Create(ctx context.Context, pkg *models.SubscriptionPackage) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.SubscriptionPackage, error)
	Update(ctx context.Context, pkg *models.SubscriptionPackage) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, activeOnly bool) ([]models.SubscriptionPackage, error)
}

type SubscriptionRepository interface {
	// Create and Update fail with ErrDuplicate when the write would leave
	// the vendor with two active subscriptions.
	Create(ctx context.Context, sub *models.VendorSubscription) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.VendorSubscription, error)
	Update(ctx context.Context, sub *models.VendorSubscription) error
	FindActiveByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error)
	FindLatestPendingByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error)
	// FindRenewals returns every subscription created as a renewal of previousID.
	FindRenewals(ctx context.Context, previousID primitive.ObjectID) ([]models.VendorSubscription, error)
	// MarkReminded stamps the last renewal reminder and leaves the rest of the document alone.
	MarkReminded(ctx context.Context, id primitive.ObjectID, at time.Time) error
	// FindExpiring returns active subscriptions ending in [from, to] whose last
	// reminder is unset or older than notifiedBefore.
	FindExpiring(ctx context.Context, from, to, notifiedBefore time.Time) ([]models.VendorSubscription, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, filter SubscriptionFilter) ([]models.VendorSubscription, int64, error)
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error)
	FindLatestBySubscription(ctx context.Context, subscriptionID primitive.ObjectID) (*models.PaymentTransaction, error)
	FindLatestByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentTransaction, error)
	Update(ctx context.Context, tx *models.PaymentTransaction) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.PaymentTransaction, int64, error)
	SumCompleted(ctx context.Context, types ...string) (float64, error)
}

type FlashSaleRepository interface {
	Create(ctx context.Context, sale *models.FlashSale) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.FlashSale, error)
	Update(ctx context.Context, sale *models.FlashSale) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// List returns every sale, or only those running at *runningAt when set.
	List(ctx context.Context, runningAt *time.Time) ([]models.FlashSale, error)
}

type SettingsRepository interface {
	Get(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, settings *models.Settings) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) error
}

// Transactor runs fn inside a single atomic unit of work. Repositories
// called with the ctx handed to fn take part in the transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every repository behind one transactional boundary
type Store struct {
	Users         UserRepository
	Products      ProductRepository
	Carts         CartRepository
	Orders        OrderRepository
	Reviews       ReviewRepository
	Packages      PackageRepository
	Subscriptions SubscriptionRepository
	Transactions  TransactionRepository
	FlashSales    FlashSaleRepository
	Settings      SettingsRepository
	Notifications NotificationRepository

	tx Transactor
}

// WithTransaction runs fn atomically. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTransaction(ctx, fn)
}
