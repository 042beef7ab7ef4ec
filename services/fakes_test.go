package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

type fakeMpesa struct {
	mu        sync.Mutex
	pushes    []STKPushParams
	pushErr   error
	status    *STKStatus
	statusErr error
}

func (f *fakeMpesa) InitiateSTKPush(ctx context.Context, params STKPushParams) (*models.STKPushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushes = append(f.pushes, params)
	n := len(f.pushes)
	return &models.STKPushResponse{
		MerchantRequestID: fmt.Sprintf("mr-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:      "0",
	}, nil
}

func (f *fakeMpesa) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status == nil {
		return &STKStatus{Outcome: PaymentOutcomePending}, nil
	}
	return f.status, nil
}

func (f *fakeMpesa) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

type fakeCards struct {
	err     error
	charges []CardChargeParams
}

func (f *fakeCards) Charge(ctx context.Context, params CardChargeParams) (*CardCharge, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.charges = append(f.charges, params)
	return &CardCharge{ChargeID: fmt.Sprintf("ch_%d", len(f.charges)), Last4: "4242", Brand: "visa"}, nil
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]bool
	// onSend runs before each delivery, outside the lock
	onSend func(to string)
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.onSend != nil {
		m.onSend(to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[to] {
		return errors.New("smtp: mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *recordingMailer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.to)
	}
	return out
}

// testEnv wires every service against the memory store and fake providers
type testEnv struct {
	store   *repositories.Store
	mpesa   *fakeMpesa
	cards   *fakeCards
	mailer  *recordingMailer
	bus     *events.MemoryBus
	now     time.Time
	subs    *SubscriptionService
	orders  *OrderService
	payment *PaymentReconciler
	sweeper *ExpirySweeper

	admin    *models.User
	merchant *models.User
	customer *models.User
	pkg      *models.SubscriptionPackage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		store:  repositories.NewMemoryStore(),
		mpesa:  &fakeMpesa{},
		cards:  &fakeCards{},
		mailer: &recordingMailer{failTo: map[string]bool{}},
		bus:    events.NewMemoryBus(),
		now:    time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	notifier := NewNotifier(env.store, env.bus, nil, env.mailer, "ops@example.com")
	env.subs = NewSubscriptionService(env.store, env.mpesa, env.cards, notifier)
	env.subs.now = clock
	env.orders = NewOrderService(env.store, env.mpesa, env.cards, notifier, OrderConfig{ShippingFee: 200, TaxRate: 0.16})
	env.orders.now = clock
	env.payment = NewPaymentReconciler(env.store, env.mpesa, env.subs, env.orders)
	env.sweeper = NewExpirySweeper(env.store, env.mailer, "https://nairobiverified.test")
	env.sweeper.now = clock

	env.admin = env.createUser(t, "admin@example.com", models.RoleAdmin)
	env.merchant = env.createUser(t, "shop@example.com", models.RoleMerchant)
	env.customer = env.createUser(t, "buyer@example.com", models.RoleCustomer)

	env.pkg = &models.SubscriptionPackage{
		Name:                  "Gold",
		Price:                 1500,
		Currency:              "KES",
		Duration:              1,
		DurationUnit:          models.DurationMonth,
		ProductLimit:          50,
		FeaturedProductsLimit: 5,
		IsActive:              true,
	}
	require.NoError(t, env.store.Packages.Create(ctx, env.pkg))
	return env
}

func (e *testEnv) createUser(t *testing.T, email, role string) *models.User {
	t.Helper()
	user := &models.User{
		FirstName:    "Test",
		LastName:     role,
		Email:        email,
		Role:         role,
		IsActive:     true,
		BusinessName: "Shop " + email,
	}
	require.NoError(t, e.store.Users.Create(context.Background(), user))
	return user
}

func (e *testEnv) createProduct(t *testing.T, name string, price float64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:     name,
		Price:    price,
		Category: "electronics",
		Stock:    stock,
		Merchant: e.merchant.ID,
		IsActive: true,
	}
	require.NoError(t, e.store.Products.Create(context.Background(), product))
	return product
}

func principalOf(u *models.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

func requireAppError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, appErr.Message)
}

func stkCallback(checkoutID string, code int, items ...models.CallbackItem) *models.STKCallback {
	cb := &models.STKCallback{
		MerchantRequestID: "mr-1",
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        "The service request is processed successfully.",
	}
	if code != 0 {
		cb.ResultDesc = "Request cancelled by user"
	}
	if len(items) > 0 {
		cb.CallbackMetadata = &struct {
			Item []models.CallbackItem `json:"Item"`
		}{Item: items}
	}
	return cb
}
