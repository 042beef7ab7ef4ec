package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

type memFiles struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func newMemFiles() *memFiles {
	return &memFiles{saved: map[string][]byte{}}
}

func (m *memFiles) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[key] = data
	return "/uploads/" + key, nil
}

func (m *memFiles) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	delete(m.saved, KeyFromURL("/uploads", url))
	return nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newProductService(env *testEnv, files FileStore) *ProductService {
	return NewProductService(env.store, env.subs, files, 2)
}

func productReq(name string, featured bool) models.ProductRequest {
	return models.ProductRequest{Name: name, Price: 1000, Category: "Home", Stock: 3, IsFeatured: featured}
}

func TestProductLimits_DefaultWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)
	svc := newProductService(env, newMemFiles())
	ctx := context.Background()
	p := principalOf(env.merchant)

	for _, name := range []string{"One", "Two"} {
		_, err := svc.Create(ctx, p, productReq(name, false))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, p, productReq("Three", false))
	requireAppError(t, err, http.StatusForbidden)

	inactive := false
	req := productReq("Draft", false)
	req.IsActive = &inactive
	draft, err := svc.Create(ctx, p, req)
	require.NoError(t, err, "inactive products do not count against the limit")
	assert.False(t, draft.IsActive)

	_, err = svc.Create(ctx, p, productReq("Featured", true))
	requireAppError(t, err, http.StatusForbidden)
}

func TestProductLimits_FollowActivePackage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pkg.ProductLimit = 0
	env.pkg.FeaturedProductsLimit = 1
	require.NoError(t, env.store.Packages.Update(ctx, env.pkg))
	_, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	svc := newProductService(env, newMemFiles())
	p := principalOf(env.merchant)
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, p, productReq("Item", false))
		require.NoError(t, err, "a zero product limit is unlimited")
	}

	featured, err := svc.Create(ctx, p, productReq("Star", true))
	require.NoError(t, err)
	assert.True(t, featured.IsFeatured)
	_, err = svc.Create(ctx, p, productReq("Second star", true))
	requireAppError(t, err, http.StatusForbidden)

	// re-saving the featured product does not count it twice
	_, err = svc.Update(ctx, p, featured.ID.Hex(), productReq("Star v2", true))
	require.NoError(t, err)

	limits, err := svc.Limits(ctx, env.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, ProductLimits{Products: 0, Featured: 1}, limits)
}

func TestProduct_OwnershipAndVisibility(t *testing.T) {
	env := newTestEnv(t)
	svc := newProductService(env, newMemFiles())
	ctx := context.Background()
	other := env.createUser(t, "rival@example.com", models.RoleMerchant)

	inactive := false
	req := productReq("Secret", false)
	req.IsActive = &inactive
	product, err := svc.Create(ctx, principalOf(env.merchant), req)
	require.NoError(t, err)
	assert.Equal(t, "home", product.Category)

	_, err = svc.Get(ctx, nil, product.ID.Hex())
	requireAppError(t, err, http.StatusNotFound)
	owner := principalOf(env.merchant)
	_, err = svc.Get(ctx, &owner, product.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Update(ctx, principalOf(other), product.ID.Hex(), productReq("Mine now", false))
	requireAppError(t, err, http.StatusForbidden)

	_, err = svc.Create(ctx, principalOf(env.customer), productReq("Nope", false))
	requireAppError(t, err, http.StatusForbidden)

	bad := productReq("Bad discount", false)
	bad.DiscountPrice = 1200
	_, err = svc.Create(ctx, principalOf(env.merchant), bad)
	requireAppError(t, err, http.StatusBadRequest)
}

func TestProduct_ImagesAreResizedAndRemovable(t *testing.T) {
	env := newTestEnv(t)
	files := newMemFiles()
	svc := newProductService(env, files)
	ctx := context.Background()
	p := principalOf(env.merchant)

	product, err := svc.Create(ctx, p, productReq("Chair", false))
	require.NoError(t, err)

	updated, err := svc.AddImage(ctx, p, product.ID.Hex(), "chair.png", testPNG(t, 1600, 900))
	require.NoError(t, err)
	require.Len(t, updated.Images, 1)
	url := updated.Images[0]
	assert.True(t, strings.HasPrefix(url, "/uploads/products/"+product.ID.Hex()+"/"))
	assert.Len(t, files.saved, 2)

	full, _, err := image.Decode(bytes.NewReader(files.saved[KeyFromURL("/uploads", url)]))
	require.NoError(t, err)
	assert.Equal(t, 1200, full.Bounds().Dx())

	_, err = svc.AddImage(ctx, p, product.ID.Hex(), "notes.txt", []byte("hello"))
	requireAppError(t, err, http.StatusBadRequest)

	updated, err = svc.RemoveImage(ctx, p, product.ID.Hex(), url)
	require.NoError(t, err)
	assert.Empty(t, updated.Images)
	assert.Empty(t, files.saved)

	_, err = svc.RemoveImage(ctx, p, product.ID.Hex(), url)
	requireAppError(t, err, http.StatusNotFound)
}

func TestReview_CreateAndModerate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reviews := NewReviewService(env.store, nil)
	product := env.createProduct(t, "Sofa", 25000, 2)
	second := env.createUser(t, "second-buyer@example.com", models.RoleCustomer)

	_, err := reviews.Create(ctx, principalOf(env.customer), models.CreateReviewRequest{ProductID: product.ID.Hex(), Rating: 6})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = reviews.Create(ctx, principalOf(env.merchant), models.CreateReviewRequest{ProductID: product.ID.Hex(), Rating: 5})
	requireAppError(t, err, http.StatusBadRequest)

	order, err := env.orders.CreateOrder(ctx, principalOf(env.customer), models.CreateOrderRequest{
		Items:           []models.OrderLineRequest{{ProductID: product.ID.Hex(), Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   models.OrderPaymentCashOnDelivery,
	})
	require.NoError(t, err)
	_, err = env.orders.UpdateOrderStatus(ctx, principalOf(env.admin), order.Order.ID.Hex(), models.OrderStatusDelivered)
	require.NoError(t, err)

	first, err := reviews.Create(ctx, principalOf(env.customer), models.CreateReviewRequest{ProductID: product.ID.Hex(), Rating: 5, Comment: "Great"})
	require.NoError(t, err)
	assert.True(t, first.IsVerifiedPurchase)
	assert.Equal(t, models.ReviewStatusApproved, first.Status)

	_, err = reviews.Create(ctx, principalOf(env.customer), models.CreateReviewRequest{ProductID: product.ID.Hex(), Rating: 4})
	requireAppError(t, err, http.StatusBadRequest)

	secondReview, err := reviews.Create(ctx, principalOf(second), models.CreateReviewRequest{ProductID: product.ID.Hex(), Rating: 2})
	require.NoError(t, err)
	assert.False(t, secondReview.IsVerifiedPurchase)

	reloaded, err := env.store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, reloaded.Rating)
	assert.Equal(t, 2, reloaded.NumReviews)

	_, err = reviews.SetStatus(ctx, secondReview.ID.Hex(), models.ReviewStatusRejected)
	require.NoError(t, err)
	reloaded, err = env.store.Products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, reloaded.Rating)
	assert.Equal(t, 1, reloaded.NumReviews)

	listed, total, err := reviews.ListForProduct(ctx, product.ID.Hex(), repositories.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, first.ID, listed[0].ID)

	replied, err := reviews.Reply(ctx, principalOf(env.merchant), first.ID.Hex(), "Asante sana!")
	require.NoError(t, err)
	require.NotNil(t, replied.Reply)
	assert.Equal(t, "Asante sana!", replied.Reply.Message)

	_, err = reviews.Reply(ctx, principalOf(second), first.ID.Hex(), "Not mine")
	requireAppError(t, err, http.StatusForbidden)
}

func TestMerchant_VerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewMerchantService(env.store, newMemFiles(), nil, "https://nairobiverified.test/")

	_, err := svc.SubmitDocument(ctx, principalOf(env.customer), "business_permit", "permit.pdf", []byte("%PDF-1.4"))
	requireAppError(t, err, http.StatusForbidden)

	_, err = svc.SubmitDocument(ctx, principalOf(env.merchant), "business_permit", "permit.exe", []byte("MZ"))
	requireAppError(t, err, http.StatusBadRequest)

	merchant, err := svc.SubmitDocument(ctx, principalOf(env.merchant), "business_permit", "permit.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, merchant.VerificationStatus)
	require.Len(t, merchant.Documents, 1)

	_, err = svc.BadgeQRCode(ctx, env.merchant.ID.Hex())
	requireAppError(t, err, http.StatusNotFound)

	_, err = svc.Reject(ctx, env.merchant.ID.Hex(), "  ")
	requireAppError(t, err, http.StatusBadRequest)
	rejected, err := svc.Reject(ctx, env.merchant.ID.Hex(), "Permit is expired")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, rejected.VerificationStatus)
	assert.Equal(t, "Permit is expired", rejected.RejectionReason)

	verified, err := svc.Verify(ctx, env.merchant.ID.Hex())
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.NotNil(t, verified.VerifiedAt)
	assert.Empty(t, verified.RejectionReason)

	png, err := svc.BadgeQRCode(ctx, env.merchant.ID.Hex())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	public, err := svc.PublicProfile(ctx, env.merchant.ID.Hex())
	require.NoError(t, err)
	assert.Empty(t, public.Email)
	assert.Empty(t, public.Documents)

	_, err = svc.PublicProfile(ctx, env.customer.ID.Hex())
	requireAppError(t, err, http.StatusNotFound)
}

func TestPackage_DeleteDeactivatesWhileHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewPackageService(env.store)

	_, err := svc.Create(ctx, models.PackageRequest{Name: "Broken", Price: 100, Duration: 1, DurationUnit: "fortnight"})
	requireAppError(t, err, http.StatusBadRequest)

	spare, err := svc.Create(ctx, models.PackageRequest{Name: "Bronze", Price: 500, Duration: 2, DurationUnit: models.DurationWeek})
	require.NoError(t, err)
	assert.Equal(t, "KES", spare.Currency)
	assert.True(t, spare.IsActive)

	_, err = env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, env.pkg.ID.Hex()))
	held, err := svc.Get(ctx, env.pkg.ID.Hex())
	require.NoError(t, err)
	assert.False(t, held.IsActive)

	require.NoError(t, svc.Delete(ctx, spare.ID.Hex()))
	_, err = svc.Get(ctx, spare.ID.Hex())
	requireAppError(t, err, http.StatusNotFound)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAuth_RegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	auth := NewAuthService(env.store)

	user, err := auth.Register(ctx, models.RegisterRequest{
		FirstName:    "Akinyi",
		Email:        " Akinyi@Example.com ",
		Password:     "supersecret",
		Phone:        "0711222333",
		Role:         models.RoleMerchant,
		BusinessName: "Akinyi Crafts",
	})
	require.NoError(t, err)
	assert.Equal(t, "akinyi@example.com", user.Email)
	assert.Equal(t, "254711222333", user.Phone)
	assert.Equal(t, models.VerificationUnsubmitted, user.VerificationStatus)
	assert.NotEqual(t, "supersecret", user.Password)

	_, err = auth.Register(ctx, models.RegisterRequest{FirstName: "Dup", Email: "akinyi@example.com", Password: "supersecret"})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = auth.Register(ctx, models.RegisterRequest{FirstName: "Eve", Email: "eve@example.com", Password: "supersecret", Role: models.RoleAdmin})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = auth.Register(ctx, models.RegisterRequest{FirstName: "Biz", Email: "biz@example.com", Password: "supersecret", Role: models.RoleMerchant})
	requireAppError(t, err, http.StatusBadRequest)

	got, err := auth.Authenticate(ctx, "AKINYI@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = auth.Authenticate(ctx, "akinyi@example.com", "wrong-password")
	requireAppError(t, err, http.StatusUnauthorized)
	_, err = auth.Authenticate(ctx, "ghost@example.com", "supersecret")
	requireAppError(t, err, http.StatusUnauthorized)
}

func TestAuth_RegistrationsClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	settings, err := env.store.Settings.Get(ctx)
	require.NoError(t, err)
	settings.AllowRegistrations = false
	require.NoError(t, env.store.Settings.Save(ctx, settings))

	_, err = NewAuthService(env.store).Register(ctx, models.RegisterRequest{FirstName: "Late", Email: "late@example.com", Password: "supersecret"})
	requireAppError(t, err, http.StatusForbidden)
}

func TestAdmin_ToggleUserAndAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := NewAdminService(env.store)
	admin.now = func() time.Time { return env.now }
	auth := NewAuthService(env.store)

	_, err := admin.ToggleUserActive(ctx, principalOf(env.admin), env.admin.ID.Hex())
	requireAppError(t, err, http.StatusBadRequest)

	suspended, err := admin.ToggleUserActive(ctx, principalOf(env.admin), env.customer.ID.Hex())
	require.NoError(t, err)
	assert.False(t, suspended.IsActive)
	_, err = auth.ActiveUser(ctx, env.customer.ID)
	requireAppError(t, err, http.StatusUnauthorized)

	_, err = env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)
	env.createProduct(t, "Desk", 8000, 1)

	stats, err := admin.Analytics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalUsers)
	assert.EqualValues(t, 1, stats.TotalMerchants)
	assert.EqualValues(t, 1, stats.TotalProducts)
	assert.EqualValues(t, 1, stats.ActiveSubscriptions)
	assert.Equal(t, 1500.0, stats.SubscriptionRevenue)
}

func TestAdmin_FlashSales(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := NewAdminService(env.store)
	admin.now = func() time.Time { return env.now }
	product := env.createProduct(t, "TV", 30000, 5)

	req := models.FlashSaleRequest{
		Name:      "Madaraka Day",
		StartDate: env.now.Add(-time.Hour),
		EndDate:   env.now.Add(48 * time.Hour),
	}
	req.Products = append(req.Products, struct {
		ProductID string  `json:"productId" validate:"required"`
		SalePrice float64 `json:"salePrice" validate:"gt=0"`
		Quantity  int     `json:"quantity" validate:"gte=1"`
	}{ProductID: product.ID.Hex(), SalePrice: 35000, Quantity: 2})

	_, err := admin.CreateFlashSale(ctx, req)
	requireAppError(t, err, http.StatusBadRequest)

	req.Products[0].SalePrice = 25000
	sale, err := admin.CreateFlashSale(ctx, req)
	require.NoError(t, err)
	assert.True(t, sale.IsRunning(env.now))

	running, err := admin.ListFlashSales(ctx, true)
	require.NoError(t, err)
	assert.Len(t, running, 1)

	require.NoError(t, admin.DeleteFlashSale(ctx, sale.ID.Hex()))
	_, err = admin.UpdateFlashSale(ctx, sale.ID.Hex(), req)
	requireAppError(t, err, http.StatusNotFound)
}
