package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/controllers"
	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/security"
	"github.com/HSouheill/nairobi_verified/services"
	"github.com/HSouheill/nairobi_verified/websocket"
)

const testSecret = "route-test-secret"

type stubMpesa struct {
	mu     sync.Mutex
	pushes []services.STKPushParams
}

func (s *stubMpesa) InitiateSTKPush(ctx context.Context, params services.STKPushParams) (*models.STKPushResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, params)
	return &models.STKPushResponse{
		MerchantRequestID: fmt.Sprintf("mr-%d", len(s.pushes)),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", len(s.pushes)),
		ResponseCode:      "0",
	}, nil
}

func (s *stubMpesa) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*services.STKStatus, error) {
	return &services.STKStatus{Outcome: services.PaymentOutcomePending}, nil
}

type apiFixture struct {
	e         *echo.Echo
	store     *repositories.Store
	uploadDir string

	admin    *models.User
	merchant *models.User
	customer *models.User
	pkg      *models.SubscriptionPackage
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	f := &apiFixture{store: repositories.NewMemoryStore(), uploadDir: t.TempDir()}
	files, err := services.NewLocalStore(f.uploadDir, "/uploads")
	require.NoError(t, err)

	bus := events.NewMemoryBus()
	mpesa := &stubMpesa{}
	cards := services.SandboxCardGateway{}
	notifier := services.NewNotifier(f.store, bus, nil, nil, "")

	authService := services.NewAuthService(f.store)
	subs := services.NewSubscriptionService(f.store, mpesa, cards, notifier)
	orders := services.NewOrderService(f.store, mpesa, cards, notifier, services.OrderConfig{ShippingFee: 200, TaxRate: 0.16})
	reconciler := services.NewPaymentReconciler(f.store, mpesa, subs, orders)
	sweeper := services.NewExpirySweeper(f.store, nil, "https://nairobiverified.test")
	authenticator := middleware.NewAuthenticator(testSecret, nil, authService)

	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	f.e = echo.New()
	f.e.Validator = controllers.NewValidator()
	SetupRoutes(f.e, Controllers{
		Auth:          controllers.NewAuthController(authService, authenticator, nil, testSecret, false),
		Products:      controllers.NewProductController(services.NewProductService(f.store, subs, files, 10)),
		Carts:         controllers.NewCartController(services.NewCartService(f.store)),
		Orders:        controllers.NewOrderController(orders, reconciler),
		Reviews:       controllers.NewReviewController(services.NewReviewService(f.store, notifier)),
		Subscriptions: controllers.NewSubscriptionController(subs, reconciler, sweeper, "cb-secret"),
		Packages:      controllers.NewPackageController(services.NewPackageService(f.store)),
		Merchants:     controllers.NewMerchantController(services.NewMerchantService(f.store, files, notifier, "https://nairobiverified.test")),
		Admin:         controllers.NewAdminController(services.NewAdminService(f.store)),
		Notifications: controllers.NewNotificationController(authService),
	}, Deps{Auth: authenticator, Hub: hub, UploadDir: f.uploadDir})

	f.admin = f.createUser(t, "admin@example.com", models.RoleAdmin)
	f.merchant = f.createUser(t, "shop@example.com", models.RoleMerchant)
	f.customer = f.createUser(t, "buyer@example.com", models.RoleCustomer)

	f.pkg = &models.SubscriptionPackage{
		Name:                  "Gold",
		Price:                 1500,
		Currency:              "KES",
		Duration:              1,
		DurationUnit:          models.DurationMonth,
		ProductLimit:          50,
		FeaturedProductsLimit: 5,
		IsActive:              true,
	}
	require.NoError(t, f.store.Packages.Create(ctx, f.pkg))
	return f
}

func (f *apiFixture) createUser(t *testing.T, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		FirstName: "Test",
		Email:     email,
		Role:      role,
		IsActive:  true,
	}
	if role == models.RoleMerchant {
		user.BusinessName = "Kamau Electronics"
		user.VerificationStatus = models.VerificationUnsubmitted
	}
	require.NoError(t, f.store.Users.Create(context.Background(), user))
	return user
}

func (f *apiFixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := middleware.GenerateJWT(testSecret, user, false)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"firstName": "Wanjiku",
		"email":     "wanjiku@example.com",
		"password":  "supersecret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"firstName": "Wanjiku",
		"email":     "wanjiku@example.com",
		"password":  "supersecret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "wanjiku@example.com",
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login models.LoginResponse
	decode(t, env.Data, &login)
	require.NotEmpty(t, login.Token)
	assert.Empty(t, login.User.Password)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	meRec := httptest.NewRecorder()
	f.e.ServeHTTP(meRec, req)
	assert.Equal(t, http.StatusOK, meRec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newAPIFixture(t)
	_, err := services.NewAuthService(f.store).Register(context.Background(), models.RegisterRequest{
		FirstName: "Otieno", Email: "otieno@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)

	for i := 0; i < security.MaxLoginAttempts; i++ {
		rec, _ := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "otieno@example.com", "password": "wrong-password",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec, _ := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "otieno@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCapabilities_GuardDashboard(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/admin/dashboard/analytics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/admin/dashboard/analytics", f.token(t, f.customer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/admin/dashboard/analytics", f.token(t, f.merchant), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/api/admin/dashboard/analytics", f.token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var analytics models.Analytics
	decode(t, env.Data, &analytics)
	assert.EqualValues(t, 3, analytics.TotalUsers)
}

func TestCatalogAndOrderFlow(t *testing.T) {
	f := newAPIFixture(t)
	merchant := f.token(t, f.merchant)
	customer := f.token(t, f.customer)

	rec, _ := f.do(t, http.MethodPost, "/api/products", customer, map[string]interface{}{
		"name": "Kettle", "price": 2500, "category": "home", "stock": 3,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/api/products", merchant, map[string]interface{}{
		"name": "Kettle", "price": 2500, "category": "home", "stock": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product models.Product
	decode(t, env.Data, &product)

	rec, env = f.do(t, http.MethodGet, "/api/products?category=home", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items []models.Product `json:"items"`
		Total int64            `json:"total"`
	}
	decode(t, env.Data, &page)
	assert.EqualValues(t, 1, page.Total)

	rec, _ = f.do(t, http.MethodPost, "/api/cart/items", customer, map[string]interface{}{
		"productId": product.ID.Hex(), "quantity": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = f.do(t, http.MethodPost, "/api/orders", customer, map[string]interface{}{
		"paymentMethod": "cash_on_delivery",
		"shippingAddress": map[string]string{
			"fullName": "Wanjiku", "phone": "0712345678", "street": "Moi Avenue", "city": "Nairobi",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result services.OrderResult
	decode(t, env.Data, &result)
	assert.Equal(t, 5000.0, result.Order.Subtotal)
	assert.Equal(t, 5000.0+200+800, result.Order.Total)

	stored, err := f.store.Products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stock)

	rec, _ = f.do(t, http.MethodPut, "/api/orders/"+result.Order.ID.Hex()+"/status", customer, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/api/orders/"+result.Order.ID.Hex()+"/status", merchant, map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubscription_MpesaCallbackActivates(t *testing.T) {
	f := newAPIFixture(t)
	merchant := f.token(t, f.merchant)

	rec, env := f.do(t, http.MethodGet, "/api/subscriptions/packages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var packages []models.SubscriptionPackage
	decode(t, env.Data, &packages)
	require.Len(t, packages, 1)

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions", f.token(t, f.customer), map[string]string{
		"packageId": f.pkg.ID.Hex(), "paymentMethod": "mpesa", "phoneNumber": "0712345678",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions", merchant, map[string]string{
		"packageId": f.pkg.ID.Hex(), "paymentMethod": "mpesa", "phoneNumber": "0712345678",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	callback := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "mr-1",
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]interface{}{
					"Item": []map[string]interface{}{
						{"Name": "Amount", "Value": 1500},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254712345678},
					},
				},
			},
		},
	}

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=wrong", "", callback)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=cb-secret", "", map[string]string{"Body": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=cb-secret", "", callback)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack models.MpesaCallbackAck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, 0, ack.ResultCode)

	rec, env = f.do(t, http.MethodGet, "/api/subscriptions/current", merchant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var current controllers.CurrentSubscriptionResponse
	decode(t, env.Data, &current)
	require.NotNil(t, current.Subscription)
	assert.Equal(t, models.SubscriptionStatusActive, current.Subscription.Status)

	// a replayed callback is acknowledged and changes nothing
	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=cb-secret", "", callback)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscription_CallbackCorrelatesByAccountReference(t *testing.T) {
	f := newAPIFixture(t)
	merchant := f.token(t, f.merchant)

	rec, env := f.do(t, http.MethodPost, "/api/subscriptions", merchant, map[string]string{
		"packageId": f.pkg.ID.Hex(), "paymentMethod": "mpesa", "phoneNumber": "0712345678",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created services.SubscriptionResult
	decode(t, env.Data, &created)
	require.NotNil(t, created.Transaction)

	callback := func(items ...map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"Body": map[string]interface{}{
				"stkCallback": map[string]interface{}{
					"MerchantRequestID": "mr-1",
					"ResultCode":        0,
					"ResultDesc":        "The service request is processed successfully.",
					"CallbackMetadata":  map[string]interface{}{"Item": items},
				},
			},
		}
	}
	amount := map[string]interface{}{"Name": "Amount", "Value": 1500}

	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=cb-secret", "", callback(amount))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reference := map[string]interface{}{
		"Name":  "AccountReference",
		"Value": services.AccountReferencePrefix + created.Transaction.TransactionID,
	}
	rec, _ = f.do(t, http.MethodPost, "/api/subscriptions/mpesa-callback?token=cb-secret", "", callback(amount, reference))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/subscriptions/current", merchant, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var current controllers.CurrentSubscriptionResponse
	decode(t, env.Data, &current)
	require.NotNil(t, current.Subscription)
	assert.Equal(t, models.SubscriptionStatusActive, current.Subscription.Status)
}

func TestMerchantVerificationAndBadge(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.token(t, f.admin)
	qrPath := "/api/merchants/" + f.merchant.ID.Hex() + "/qr"

	rec, _ := f.do(t, http.MethodGet, qrPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/admin/dashboard/merchants/"+f.merchant.ID.Hex()+"/verify", f.token(t, f.customer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/admin/dashboard/merchants/"+f.merchant.ID.Hex()+"/verify", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = f.do(t, http.MethodGet, qrPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, []byte("\x89PNG"), rec.Body.Bytes()[:4])

	rec, env := f.do(t, http.MethodGet, "/api/merchants/"+f.merchant.ID.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile map[string]interface{}
	decode(t, env.Data, &profile)
	assert.Empty(t, profile["email"])

	rec, env = f.do(t, http.MethodGet, "/api/notifications", f.token(t, f.merchant), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []models.Notification
	decode(t, env.Data, &inbox)
	require.NotEmpty(t, inbox)
	assert.Equal(t, events.MerchantVerified, inbox[0].Type)
}

func TestFileRoutes(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.uploadDir, "products"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.uploadDir, "documents"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.uploadDir, "products", "a.jpg"), []byte("img"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.uploadDir, "documents", "permit.pdf"), []byte("pdf"), 0644))

	rec, _ := f.do(t, http.MethodGet, "/uploads/products/a.jpg", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "img", rec.Body.String())

	rec, _ = f.do(t, http.MethodGet, "/uploads/../secret", "", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/uploads/documents/permit.pdf", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/uploads/documents/permit.pdf", f.token(t, f.merchant), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/uploads/documents/permit.pdf", f.token(t, f.admin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
}
