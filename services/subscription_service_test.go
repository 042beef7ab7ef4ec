package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

func TestSubscribe_AdminGrantActivatesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)
	assert.Equal(t, models.PaymentStatusPaid, res.Subscription.PaymentStatus)
	assert.Equal(t, models.TransactionStatusCompleted, res.Transaction.Status)
	assert.Equal(t, env.now.AddDate(0, 1, 0), res.Subscription.EndDate)
	assert.Equal(t, 1500.0, res.Subscription.PaymentDetails.Amount)
	assert.Contains(t, res.Subscription.PaymentDetails.ReceiptNumber, "ADMIN-")

	current, pkg, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, res.Subscription.ID, current.ID)
	assert.Equal(t, "Gold", pkg.Name)
}

func TestSubscribe_MerchantCannotUseAdminMethod(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.subs.Subscribe(context.Background(), principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	requireAppError(t, err, http.StatusForbidden)
}

func TestSubscribe_CustomerIsForbidden(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.subs.Subscribe(context.Background(), principalOf(env.customer), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "0712345678",
	})
	requireAppError(t, err, http.StatusForbidden)
}

func TestSubscribe_InactivePackageIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pkg.IsActive = false
	require.NoError(t, env.store.Packages.Update(ctx, env.pkg))

	_, err := env.subs.Subscribe(ctx, principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	requireAppError(t, err, http.StatusNotFound)
}

func TestSubscribe_RejectsSecondActiveWithoutWriting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	_, err = env.subs.Subscribe(ctx, principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "0712345678",
	})
	requireAppError(t, err, http.StatusBadRequest)

	_, total, err := env.subs.History(ctx, principalOf(env.merchant), repositories.SubscriptionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Zero(t, env.mpesa.pushCount())

	txs, _, err := env.store.Transactions.ListByUser(ctx, env.merchant.ID, repositories.Page{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestSubscribe_LapsedActiveIsExpiredAndReplaced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := &models.VendorSubscription{
		Vendor:    env.merchant.ID,
		Package:   env.pkg.ID,
		StartDate: env.now.AddDate(0, -2, 0),
		EndDate:   env.now.AddDate(0, -1, 0),
		Status:    models.SubscriptionStatusActive,
	}
	require.NoError(t, env.store.Subscriptions.Create(ctx, old))

	res, err := env.subs.Subscribe(ctx, principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)
	assert.Equal(t, "4242", res.Transaction.CardDetails.Last4)

	reloaded, err := env.store.Subscriptions.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusExpired, reloaded.Status)
}

func TestSubscribe_MpesaLeavesPairPending(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.subs.Subscribe(context.Background(), principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "0712 345 678",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusPending, res.Subscription.Status)
	assert.Equal(t, models.PaymentStatusPending, res.Subscription.PaymentStatus)
	assert.Equal(t, models.TransactionStatusPending, res.Transaction.Status)
	require.NotNil(t, res.Transaction.MpesaDetails)
	assert.Equal(t, "ws_CO_1", res.Transaction.MpesaDetails.CheckoutRequestID)
	assert.Equal(t, "254712345678", res.Transaction.MpesaDetails.PhoneNumber)

	require.Len(t, env.mpesa.pushes, 1)
	assert.Equal(t, AccountReferencePrefix+res.Transaction.TransactionID, env.mpesa.pushes[0].AccountReference)
	assert.Equal(t, 1500.0, env.mpesa.pushes[0].Amount)
}

func TestSubscribe_ProviderFailureLeavesNothingPending(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		req   models.SubscribeRequest
	}{
		{
			name:  "stk push rejected",
			setup: func(env *testEnv) { env.mpesa.pushErr = errors.New("invalid access token") },
			req:   models.SubscribeRequest{PaymentMethod: models.PaymentMethodMpesa, PhoneNumber: "0712345678"},
		},
		{
			name:  "card declined",
			setup: func(env *testEnv) { env.cards.err = errors.New("card declined") },
			req:   models.SubscribeRequest{PaymentMethod: models.PaymentMethodCard, CardToken: "tok_visa"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			tt.setup(env)
			tt.req.PackageID = env.pkg.ID.Hex()

			_, err := env.subs.Subscribe(ctx, principalOf(env.merchant), tt.req)
			requireAppError(t, err, http.StatusBadGateway)

			_, err = env.store.Subscriptions.FindLatestPendingByVendor(ctx, env.merchant.ID)
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			subs, _, err := env.store.Subscriptions.List(ctx, repositories.SubscriptionFilter{Vendor: &env.merchant.ID})
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, models.SubscriptionStatusCancelled, subs[0].Status)
			assert.Equal(t, models.PaymentStatusFailed, subs[0].PaymentStatus)

			txs, _, err := env.store.Transactions.ListByUser(ctx, env.merchant.ID, repositories.Page{})
			require.NoError(t, err)
			require.Len(t, txs, 1)
			assert.Equal(t, models.TransactionStatusFailed, txs[0].Status)

			current, _, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
			require.NoError(t, err)
			assert.Nil(t, current)
		})
	}
}

func TestRenew_StartsWhereCurrentPeriodEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	env.now = env.now.Add(20 * 24 * time.Hour)
	renewal, err := env.subs.Renew(ctx, principalOf(env.merchant), first.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "254712345678",
	})
	require.NoError(t, err)

	assert.Equal(t, first.Subscription.EndDate, renewal.Subscription.StartDate)
	assert.Equal(t, first.Subscription.EndDate.AddDate(0, 1, 0), renewal.Subscription.EndDate)
	require.NotNil(t, renewal.Subscription.PreviousSubscription)
	assert.Equal(t, first.Subscription.ID, *renewal.Subscription.PreviousSubscription)
	assert.Equal(t, models.TransactionTypeSubscriptionRenewal, renewal.Transaction.Type)

	// the current period keeps entitling until the renewal is paid
	current, _, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Subscription.ID, current.ID)
}

func TestRenew_LapsedSubscriptionStartsNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := &models.VendorSubscription{
		Vendor:        env.merchant.ID,
		Package:       env.pkg.ID,
		StartDate:     env.now.AddDate(0, -3, 0),
		EndDate:       env.now.AddDate(0, -2, 0),
		Status:        models.SubscriptionStatusExpired,
		PaymentStatus: models.PaymentStatusPaid,
	}
	require.NoError(t, env.store.Subscriptions.Create(ctx, old))

	renewal, err := env.subs.Renew(ctx, principalOf(env.merchant), old.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, env.now, renewal.Subscription.StartDate)
	assert.Equal(t, models.SubscriptionStatusActive, renewal.Subscription.Status)
}

func TestRenew_OtherMerchantIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := env.createUser(t, "other@example.com", models.RoleMerchant)

	first, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)

	_, err = env.subs.Renew(ctx, principalOf(other), first.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	requireAppError(t, err, http.StatusForbidden)
}

func TestCancel_KeepsRecordAndDropsEntitlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.subs.Subscribe(ctx, principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
		AutoRenew:     true,
	})
	require.NoError(t, err)

	cancelled, err := env.subs.Cancel(ctx, principalOf(env.merchant), res.Subscription.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.AutoRenew)
	assert.NotNil(t, cancelled.CancelledAt)

	current, _, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = env.subs.Cancel(ctx, principalOf(env.merchant), res.Subscription.ID.Hex())
	requireAppError(t, err, http.StatusBadRequest)
}

func TestCurrentSubscription_IgnoresUnsweptExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Subscriptions.Create(ctx, &models.VendorSubscription{
		Vendor:    env.merchant.ID,
		Package:   env.pkg.ID,
		StartDate: env.now.AddDate(0, -1, -1),
		EndDate:   env.now.Add(-time.Minute),
		Status:    models.SubscriptionStatusActive,
	}))

	current, pkg, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Nil(t, pkg)
}

func adminGrant(t *testing.T, env *testEnv) *SubscriptionResult {
	t.Helper()
	res, err := env.subs.Subscribe(context.Background(), principalOf(env.admin), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		VendorID:      env.merchant.ID.Hex(),
		PaymentMethod: models.PaymentMethodAdmin,
	})
	require.NoError(t, err)
	return res
}

func TestCancel_PendingPurchaseRecordsLatePaymentForRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pending := pendingMpesaSubscription(t, env)

	cancelled, err := env.subs.Cancel(ctx, principalOf(env.merchant), pending.Subscription.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, cancelled.PaymentStatus)

	tx, err := env.store.Transactions.FindByID(ctx, pending.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)

	granted := adminGrant(t, env)

	res, err := env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_1", 0, paidItems(1500)...))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, res.Status)
	assert.Contains(t, res.Transaction.Notes, "refund required")
	assert.Equal(t, models.SubscriptionStatusCancelled, res.Subscription.Status)
	assert.Equal(t, models.PaymentStatusPaid, res.Subscription.PaymentStatus)

	current, _, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, granted.Subscription.ID, current.ID)
}

func TestActivate_CancelledSubscriptionStaysCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pending := pendingMpesaSubscription(t, env)

	// cancelled without touching its payment, as rows written before cancels failed the transaction
	sub, err := env.store.Subscriptions.FindByID(ctx, pending.Subscription.ID)
	require.NoError(t, err)
	sub.Status = models.SubscriptionStatusCancelled
	require.NoError(t, env.store.Subscriptions.Update(ctx, sub))

	res, err := env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_1", 0, paidItems(1500)...))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, res.Status)
	assert.Equal(t, models.SubscriptionStatusCancelled, res.Subscription.Status)
	assert.Contains(t, res.Transaction.Notes, "refund required")
}

func TestRenew_SecondRenewalOfSamePeriodIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := adminGrant(t, env)
	card := models.RenewRequest{PaymentMethod: models.PaymentMethodCard, CardToken: "tok_visa"}

	first, err := env.subs.Renew(ctx, principalOf(env.merchant), base.Subscription.ID.Hex(), card)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, first.Subscription.Status)

	_, err = env.subs.Renew(ctx, principalOf(env.merchant), base.Subscription.ID.Hex(), card)
	requireAppError(t, err, http.StatusConflict)
	assert.Len(t, env.cards.charges, 1)

	// the renewal itself is the one to renew next
	next, err := env.subs.Renew(ctx, principalOf(env.merchant), first.Subscription.ID.Hex(), card)
	require.NoError(t, err)
	assert.Equal(t, first.Subscription.EndDate, next.Subscription.StartDate)
}

func TestRenew_PendingRenewalBlocksAnother(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := adminGrant(t, env)

	pending, err := env.subs.Renew(ctx, principalOf(env.merchant), base.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "0712345678",
	})
	require.NoError(t, err)

	_, err = env.subs.Renew(ctx, principalOf(env.merchant), base.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	requireAppError(t, err, http.StatusConflict)

	// cancelling the stuck renewal frees the period again
	_, err = env.subs.Cancel(ctx, principalOf(env.merchant), pending.Subscription.ID.Hex())
	require.NoError(t, err)
	_, err = env.subs.Renew(ctx, principalOf(env.merchant), base.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	require.NoError(t, err)
}

func TestRenew_UnpaidSubscriptionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	failed, err := env.subs.Subscribe(ctx, principalOf(env.merchant), models.SubscribeRequest{
		PackageID:     env.pkg.ID.Hex(),
		PaymentMethod: models.PaymentMethodMpesa,
		PhoneNumber:   "0712345678",
	})
	require.NoError(t, err)
	_, err = env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_1", 1032))
	require.NoError(t, err)

	_, err = env.subs.Renew(ctx, principalOf(env.merchant), failed.Subscription.ID.Hex(), models.RenewRequest{
		PaymentMethod: models.PaymentMethodCard,
		CardToken:     "tok_visa",
	})
	requireAppError(t, err, http.StatusBadRequest)
	assert.Empty(t, env.cards.charges)
}

func TestActivate_TwoPendingPurchasesOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := pendingMpesaSubscription(t, env)
	second := pendingMpesaSubscription(t, env)

	res, err := env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_1", 0, paidItems(1500)...))
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, res.Subscription.Status)

	_, err = env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_2", 0, paidItems(1500)...))
	requireAppError(t, err, http.StatusConflict)

	loser, err := env.store.Subscriptions.FindByID(ctx, second.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, loser.Status)
	assert.Equal(t, models.PaymentStatusPaid, loser.PaymentStatus)
	tx, err := env.store.Transactions.FindByID(ctx, second.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.Contains(t, tx.Notes, "refund required")

	current, _, err := env.subs.CurrentSubscription(ctx, env.merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, first.Subscription.ID, current.ID)

	// the replay stays settled
	_, err = env.payment.HandleMpesaCallback(ctx, stkCallback("ws_CO_2", 0, paidItems(1500)...))
	require.NoError(t, err)
}
