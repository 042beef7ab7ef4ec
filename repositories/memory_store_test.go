package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
)

func TestMemoryStore_TransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	product := &models.Product{Name: "Kikoi", Stock: 5, IsActive: true}
	require.NoError(t, store.Products.Create(ctx, product))

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Products.AdjustStock(ctx, product.ID, -3))
		require.NoError(t, store.Orders.Create(ctx, &models.Order{User: primitive.NewObjectID()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	_, total, err := store.Orders.List(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStore_NestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	product := &models.Product{Name: "Basket", Stock: 2}
	require.NoError(t, store.Products.Create(ctx, product))

	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, store.WithTransaction(ctx, func(ctx context.Context) error {
			return store.Products.AdjustStock(ctx, product.ID, -1)
		}))
		return errors.New("outer failure")
	})
	require.Error(t, err)

	got, err := store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}

func TestMemoryStore_AdjustStock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	product := &models.Product{Name: "Sufuria", Stock: 1}
	require.NoError(t, store.Products.Create(ctx, product))

	assert.ErrorIs(t, store.Products.AdjustStock(ctx, product.ID, -2), ErrInsufficientStock)
	assert.ErrorIs(t, store.Products.AdjustStock(ctx, primitive.NewObjectID(), -1), ErrNotFound)
	require.NoError(t, store.Products.AdjustStock(ctx, product.ID, -1))
	require.NoError(t, store.Products.AdjustStock(ctx, product.ID, 4))

	got, err := store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Stock)
}

func TestMemoryStore_SingleActiveSubscriptionPerVendor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	vendor := primitive.NewObjectID()

	first := &models.VendorSubscription{Vendor: vendor, Status: models.SubscriptionStatusActive}
	require.NoError(t, store.Subscriptions.Create(ctx, first))

	second := &models.VendorSubscription{Vendor: vendor, Status: models.SubscriptionStatusPending}
	require.NoError(t, store.Subscriptions.Create(ctx, second))

	second.Status = models.SubscriptionStatusActive
	assert.ErrorIs(t, store.Subscriptions.Update(ctx, second), ErrDuplicate)

	// Another vendor is unaffected
	other := &models.VendorSubscription{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusActive}
	assert.NoError(t, store.Subscriptions.Create(ctx, other))
}

func TestMemoryStore_FindExpiring(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	stale := now.Add(-48 * time.Hour)

	subs := []*models.VendorSubscription{
		{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 0, 3)},
		{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 0, 3), LastRenewalNotification: &recent},
		{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 0, 5), LastRenewalNotification: &stale},
		{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 0, 30)},
		{Vendor: primitive.NewObjectID(), Status: models.SubscriptionStatusCancelled, EndDate: now.AddDate(0, 0, 2)},
	}
	for _, s := range subs {
		require.NoError(t, store.Subscriptions.Create(ctx, s))
	}

	got, err := store.Subscriptions.FindExpiring(ctx, now, now.AddDate(0, 0, 7), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, subs[0].ID, got[0].ID)
	assert.Equal(t, subs[2].ID, got[1].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	product := &models.Product{Name: "Lamp", Images: []string{"a.jpg"}}
	require.NoError(t, store.Products.Create(ctx, product))

	got, err := store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	got.Images[0] = "mutated.jpg"

	again, err := store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", again.Images[0])
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in   Page
		want Page
	}{
		{in: Page{}, want: Page{Page: 1, Limit: 20}},
		{in: Page{Page: 3, Limit: 500}, want: Page{Page: 3, Limit: 100}},
		{in: Page{Page: -1, Limit: 5}, want: Page{Page: 1, Limit: 5}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize())
	}
}
