package controllers

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/services"
)

// SubscriptionController handles merchant subscription purchase, renewal
// and M-Pesa reconciliation
type SubscriptionController struct {
	subscriptions  *services.SubscriptionService
	payments       *services.PaymentReconciler
	sweeper        *services.ExpirySweeper
	callbackSecret string
}

func NewSubscriptionController(subscriptions *services.SubscriptionService, payments *services.PaymentReconciler, sweeper *services.ExpirySweeper, callbackSecret string) *SubscriptionController {
	return &SubscriptionController{
		subscriptions:  subscriptions,
		payments:       payments,
		sweeper:        sweeper,
		callbackSecret: callbackSecret,
	}
}

// CurrentSubscriptionResponse is the caller's entitling subscription
type CurrentSubscriptionResponse struct {
	Subscription *models.VendorSubscription  `json:"subscription"`
	Package      *models.SubscriptionPackage `json:"package,omitempty"`
}

func (sc *SubscriptionController) Subscribe(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.SubscribeRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := sc.subscriptions.Subscribe(ctx, p, req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, res.Message, res)
}

func (sc *SubscriptionController) Renew(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.RenewRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := sc.subscriptions.Renew(ctx, p, c.Param("id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusCreated, res.Message, res)
}

func (sc *SubscriptionController) Cancel(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sub, err := sc.subscriptions.Cancel(ctx, p, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Subscription cancelled successfully", sub)
}

func (sc *SubscriptionController) SetAutoRenew(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	var req models.AutoRenewRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sub, err := sc.subscriptions.SetAutoRenew(ctx, p, c.Param("id"), req.AutoRenew)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Auto-renew preference updated", sub)
}

func (sc *SubscriptionController) Current(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	sub, pkg, err := sc.subscriptions.CurrentSubscription(ctx, p.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if sub == nil {
		return respond(c, http.StatusOK, "No active subscription", CurrentSubscriptionResponse{})
	}
	return respond(c, http.StatusOK, "Active subscription retrieved", CurrentSubscriptionResponse{Subscription: sub, Package: pkg})
}

// History lists the caller's subscriptions; admins see every vendor
func (sc *SubscriptionController) History(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := repositories.SubscriptionFilter{Status: c.QueryParam("status"), Page: queryPage(c)}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	subs, total, err := sc.subscriptions.History(ctx, p, filter)
	if err != nil {
		return respondError(c, err)
	}
	return paginated(c, "Subscriptions retrieved successfully", subs, total, filter.Page)
}

func (sc *SubscriptionController) authorizedCallback(c echo.Context) bool {
	if sc.callbackSecret == "" {
		return true
	}
	token := c.QueryParam("token")
	return subtle.ConstantTimeCompare([]byte(token), []byte(sc.callbackSecret)) == 1
}

// MpesaCallback receives Daraja STK results. Once the payload parses the
// provider always gets an acceptance so it stops retrying.
func (sc *SubscriptionController) MpesaCallback(c echo.Context) error {
	if !sc.authorizedCallback(c) {
		log.Printf("M-Pesa callback rejected: bad token from %s", c.RealIP())
		return respond(c, http.StatusUnauthorized, "Unauthorized", nil)
	}

	var payload models.MpesaCallback
	if err := c.Bind(&payload); err != nil || !correlatable(&payload.Body.StkCallback) {
		log.Printf("M-Pesa callback with unreadable payload: %v", err)
		return c.JSON(http.StatusBadRequest, models.MpesaCallbackAck{ResultCode: 1, ResultDesc: "Rejected"})
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	cb := payload.Body.StkCallback
	res, err := sc.payments.HandleMpesaCallback(ctx, &cb)
	if err != nil {
		log.Printf("M-Pesa callback %s not applied: %v", cb.CheckoutRequestID, err)
	} else {
		log.Printf("M-Pesa callback %s applied, transaction %s is %s", cb.CheckoutRequestID, res.Transaction.TransactionID, res.Status)
	}
	return c.JSON(http.StatusOK, models.MpesaCallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// correlatable reports whether the callback names a transaction, either by
// checkout request or by account reference
func correlatable(cb *models.STKCallback) bool {
	if cb.CheckoutRequestID != "" {
		return true
	}
	ref, _ := cb.Metadata("AccountReference").(string)
	return ref != ""
}

// PaymentStatus polls the vendor's most recent pending subscription payment
func (sc *SubscriptionController) PaymentStatus(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := sc.payments.CheckPaymentStatus(ctx, p)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Payment status retrieved", res)
}

// VerifyPayment lets support confirm a payment by its M-Pesa receipt
func (sc *SubscriptionController) VerifyPayment(c echo.Context) error {
	var req models.VerifyPaymentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	res, err := sc.payments.VerifyPayment(ctx, c.Param("transactionId"), req.ReceiptNumber)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Payment verified", res)
}

// CheckExpiring runs the renewal reminder sweep on demand
func (sc *SubscriptionController) CheckExpiring(c echo.Context) error {
	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := sc.sweeper.CheckExpiringSubscriptions(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, "Expiring subscriptions checked", res)
}
