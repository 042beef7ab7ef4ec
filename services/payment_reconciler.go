package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

// PaymentStatusResult reports where a pending payment stands
type PaymentStatusResult struct {
	Status       string                     `json:"status"`
	Subscription *models.VendorSubscription `json:"subscription,omitempty"`
	Order        *models.Order              `json:"order,omitempty"`
	Transaction  *models.PaymentTransaction `json:"transaction"`
}

// PaymentReconciler confirms asynchronous payments. The M-Pesa callback,
// the client status poll and admin verification all funnel into the same
// guarded transitions, so each transaction settles exactly once.
type PaymentReconciler struct {
	store         *repositories.Store
	mpesa         MobileMoneyGateway
	subscriptions *SubscriptionService
	orders        *OrderService
}

func NewPaymentReconciler(store *repositories.Store, mpesa MobileMoneyGateway, subscriptions *SubscriptionService, orders *OrderService) *PaymentReconciler {
	return &PaymentReconciler{store: store, mpesa: mpesa, subscriptions: subscriptions, orders: orders}
}

// outcome is what a provider told us about a transaction
type outcome struct {
	paid    bool
	receipt string
	reason  string
	details func(*models.PaymentTransaction)
}

// HandleMpesaCallback applies a Daraja STK result. Unknown transactions are
// reported as not found; repeated callbacks for a settled transaction are no-ops.
func (r *PaymentReconciler) HandleMpesaCallback(ctx context.Context, cb *models.STKCallback) (*PaymentStatusResult, error) {
	tx, err := r.findCallbackTransaction(ctx, cb)
	if err != nil {
		return nil, err
	}

	out := outcome{paid: cb.ResultCode == 0, reason: cb.ResultDesc}
	out.receipt = metadataString(cb, "MpesaReceiptNumber")
	out.details = func(t *models.PaymentTransaction) {
		if t.MpesaDetails == nil {
			t.MpesaDetails = &models.MpesaDetails{}
		}
		d := t.MpesaDetails
		code := cb.ResultCode
		d.ResultCode = &code
		d.ResultDesc = cb.ResultDesc
		if d.MerchantRequestID == "" {
			d.MerchantRequestID = cb.MerchantRequestID
		}
		if d.CheckoutRequestID == "" {
			d.CheckoutRequestID = cb.CheckoutRequestID
		}
		if out.receipt != "" {
			d.ReceiptNumber = out.receipt
		}
		if phone := metadataString(cb, "PhoneNumber"); phone != "" {
			d.PhoneNumber = phone
		}
		if date := metadataTime(cb, "TransactionDate"); date != nil {
			d.TransactionDate = date
		}
	}
	if out.paid {
		if amount, ok := metadataFloat(cb, "Amount"); ok && amount+0.5 < tx.Amount {
			log.Printf("M-Pesa callback for %s paid %.2f, expected %.2f", tx.TransactionID, amount, tx.Amount)
			out.paid = false
			out.reason = fmt.Sprintf("Underpayment: received %.2f of %.2f", amount, tx.Amount)
		}
	}

	return r.apply(ctx, tx, out)
}

func (r *PaymentReconciler) findCallbackTransaction(ctx context.Context, cb *models.STKCallback) (*models.PaymentTransaction, error) {
	if cb.CheckoutRequestID != "" {
		tx, err := r.store.Transactions.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInternal("Failed to load transaction", err)
		}
	}

	if ref := metadataString(cb, "AccountReference"); strings.HasPrefix(ref, AccountReferencePrefix) {
		tx, err := r.store.Transactions.FindByTransactionID(ctx, strings.TrimPrefix(ref, AccountReferencePrefix))
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInternal("Failed to load transaction", err)
		}
	}
	return nil, ErrNotFound("Transaction not found")
}

// CheckPaymentStatus answers "is my latest pending subscription paid yet?"
// by asking Daraja directly rather than waiting for the callback.
func (r *PaymentReconciler) CheckPaymentStatus(ctx context.Context, p Principal) (*PaymentStatusResult, error) {
	sub, err := r.store.Subscriptions.FindLatestPendingByVendor(ctx, p.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("No pending subscription found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load subscription", err)
	}
	tx, err := r.store.Transactions.FindLatestBySubscription(ctx, sub.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("No transaction found for subscription")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load transaction", err)
	}
	return r.poll(ctx, tx)
}

// CheckOrderPaymentStatus polls Daraja for an order the caller owns
func (r *PaymentReconciler) CheckOrderPaymentStatus(ctx context.Context, p Principal, orderID string) (*PaymentStatusResult, error) {
	order, err := r.orders.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && order.User != p.UserID {
		return nil, ErrForbidden("Not authorized to view this order")
	}
	tx, err := r.store.Transactions.FindLatestByOrder(ctx, order.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("No payment found for order")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load transaction", err)
	}
	return r.poll(ctx, tx)
}

func (r *PaymentReconciler) poll(ctx context.Context, tx *models.PaymentTransaction) (*PaymentStatusResult, error) {
	if tx.IsFinal() || tx.PaymentMethod != models.PaymentMethodMpesa || tx.MpesaDetails == nil || tx.MpesaDetails.CheckoutRequestID == "" {
		return r.result(ctx, tx)
	}

	status, err := r.mpesa.QuerySTKStatus(ctx, tx.MpesaDetails.CheckoutRequestID)
	if err != nil {
		return nil, ErrBadGateway("Failed to check M-Pesa payment status", err)
	}
	if status.Outcome == PaymentOutcomePending {
		return r.result(ctx, tx)
	}

	code := status.ResultCode
	return r.apply(ctx, tx, outcome{
		paid:   status.Outcome == PaymentOutcomePaid,
		reason: status.ResultDesc,
		details: func(t *models.PaymentTransaction) {
			if t.MpesaDetails != nil {
				t.MpesaDetails.ResultCode = &code
				t.MpesaDetails.ResultDesc = status.ResultDesc
			}
		},
	})
}

// VerifyPayment lets an admin confirm a payment by hand, e.g. after checking
// the M-Pesa statement for a callback that never arrived.
func (r *PaymentReconciler) VerifyPayment(ctx context.Context, transactionID, receipt string) (*PaymentStatusResult, error) {
	tx, err := r.store.Transactions.FindByTransactionID(ctx, transactionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Transaction not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load transaction", err)
	}
	if tx.IsFinal() {
		return r.result(ctx, tx)
	}

	return r.apply(ctx, tx, outcome{
		paid:    true,
		receipt: receipt,
		details: func(t *models.PaymentTransaction) {
			t.Notes = "Verified manually by admin"
			if receipt != "" && t.MpesaDetails != nil {
				t.MpesaDetails.ReceiptNumber = receipt
			}
		},
	})
}

func (r *PaymentReconciler) apply(ctx context.Context, tx *models.PaymentTransaction, out outcome) (*PaymentStatusResult, error) {
	switch {
	case tx.RelatedSubscription != nil:
		var err error
		if out.paid {
			_, _, err = r.subscriptions.activate(ctx, *tx.RelatedSubscription, tx.ID, out.receipt, out.details)
		} else {
			_, _, err = r.subscriptions.fail(ctx, *tx.RelatedSubscription, tx.ID, out.reason, out.details)
		}
		if err != nil {
			return nil, err
		}
	case tx.RelatedOrder != nil && r.orders != nil:
		var err error
		if out.paid {
			err = r.orders.completePayment(ctx, *tx.RelatedOrder, tx.ID, out.details)
		} else {
			err = r.orders.failPayment(ctx, *tx.RelatedOrder, tx.ID, out.reason, out.details)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrInternal("Transaction is not linked to a subscription or order", nil)
	}

	fresh, err := r.store.Transactions.FindByID(ctx, tx.ID)
	if err != nil {
		return nil, ErrInternal("Failed to reload transaction", err)
	}
	return r.result(ctx, fresh)
}

func (r *PaymentReconciler) result(ctx context.Context, tx *models.PaymentTransaction) (*PaymentStatusResult, error) {
	res := &PaymentStatusResult{Status: tx.Status, Transaction: tx}
	if tx.RelatedSubscription != nil {
		sub, err := r.store.Subscriptions.FindByID(ctx, *tx.RelatedSubscription)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInternal("Failed to load subscription", err)
		}
		res.Subscription = sub
	}
	if tx.RelatedOrder != nil {
		order, err := r.store.Orders.FindByID(ctx, *tx.RelatedOrder)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInternal("Failed to load order", err)
		}
		res.Order = order
	}
	return res, nil
}

func metadataString(cb *models.STKCallback, name string) string {
	switch v := cb.Metadata(name).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metadataFloat(cb *models.STKCallback, name string) (float64, bool) {
	switch v := cb.Metadata(name).(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// metadataTime parses Daraja's yyyyMMddHHmmss numeric timestamp
func metadataTime(cb *models.STKCallback, name string) *time.Time {
	raw := metadataString(cb, name)
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation("20060102150405", raw, eat)
	if err != nil {
		return nil
	}
	return &t
}
