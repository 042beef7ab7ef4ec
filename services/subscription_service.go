package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

// AccountReferencePrefix prefixes the transaction id in the M-Pesa account
// reference so callbacks can be correlated without a checkout request id.
const AccountReferencePrefix = "NairobiVerified-"

const defaultCurrency = "KES"

// SubscriptionResult is what a purchase or renewal hands back to the caller
type SubscriptionResult struct {
	Subscription *models.VendorSubscription `json:"subscription"`
	Transaction  *models.PaymentTransaction `json:"transaction"`
	Message      string                     `json:"message"`
}

// SubscriptionService sells subscription packages to merchants
type SubscriptionService struct {
	store    *repositories.Store
	mpesa    MobileMoneyGateway
	cards    CardGateway
	notifier *Notifier
	now      func() time.Time
}

func NewSubscriptionService(store *repositories.Store, mpesa MobileMoneyGateway, cards CardGateway, notifier *Notifier) *SubscriptionService {
	return &SubscriptionService{store: store, mpesa: mpesa, cards: cards, notifier: notifier, now: time.Now}
}

// paymentInput is the method-specific part of a purchase after validation
type paymentInput struct {
	method    string
	phone     string
	cardToken string
}

// validatePayment rejects unusable payment details before anything is written
func validatePayment(p Principal, method, phone, cardToken string) (paymentInput, error) {
	switch method {
	case models.PaymentMethodMpesa:
		if phone == "" {
			return paymentInput{}, ErrBadRequest("Phone number is required for M-Pesa payment")
		}
		normalized, err := utils.NormalizeKenyanPhone(phone)
		if err != nil {
			return paymentInput{}, ErrBadRequest("Invalid M-Pesa phone number")
		}
		return paymentInput{method: method, phone: normalized}, nil
	case models.PaymentMethodCard:
		if cardToken == "" {
			return paymentInput{}, ErrBadRequest("Card token is required for card payment")
		}
		return paymentInput{method: method, cardToken: cardToken}, nil
	case models.PaymentMethodAdmin:
		if !p.IsAdmin() {
			return paymentInput{}, ErrForbidden("Only admins can grant subscriptions")
		}
		return paymentInput{method: method}, nil
	default:
		return paymentInput{}, ErrBadRequest("Invalid payment method")
	}
}

// resolveVendor decides whose subscription the caller is buying
func (s *SubscriptionService) resolveVendor(ctx context.Context, p Principal, vendorID string) (primitive.ObjectID, error) {
	switch {
	case p.IsMerchant():
		if vendorID != "" && vendorID != p.UserID.Hex() {
			return primitive.NilObjectID, ErrForbidden("Merchants can only subscribe for themselves")
		}
		return p.UserID, nil
	case p.IsAdmin():
		if vendorID == "" {
			return primitive.NilObjectID, ErrBadRequest("Vendor ID is required")
		}
		id, err := primitive.ObjectIDFromHex(vendorID)
		if err != nil {
			return primitive.NilObjectID, ErrBadRequest("Invalid vendor ID")
		}
		vendor, err := s.store.Users.FindByID(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return primitive.NilObjectID, ErrNotFound("Vendor not found")
		}
		if err != nil {
			return primitive.NilObjectID, ErrInternal("Failed to load vendor", err)
		}
		if !vendor.IsMerchant() {
			return primitive.NilObjectID, ErrBadRequest("Subscriptions can only be granted to merchants")
		}
		return id, nil
	default:
		return primitive.NilObjectID, ErrForbidden("Only merchants can subscribe to packages")
	}
}

func (s *SubscriptionService) activePackage(ctx context.Context, id primitive.ObjectID) (*models.SubscriptionPackage, error) {
	pkg, err := s.store.Packages.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Subscription package not found or inactive")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load subscription package", err)
	}
	if !pkg.IsActive {
		return nil, ErrNotFound("Subscription package not found or inactive")
	}
	return pkg, nil
}

// Subscribe starts a purchase of a package for a vendor
func (s *SubscriptionService) Subscribe(ctx context.Context, p Principal, req models.SubscribeRequest) (*SubscriptionResult, error) {
	vendorID, err := s.resolveVendor(ctx, p, req.VendorID)
	if err != nil {
		return nil, err
	}

	packageID, err := primitive.ObjectIDFromHex(req.PackageID)
	if err != nil {
		return nil, ErrBadRequest("Invalid package ID")
	}
	pkg, err := s.activePackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	payment, err := validatePayment(p, req.PaymentMethod, req.PhoneNumber, req.CardToken)
	if err != nil {
		return nil, err
	}

	now := s.now()
	endDate, err := CalculateEndDate(now, pkg.Duration, pkg.DurationUnit)
	if err != nil {
		return nil, ErrInternal("Subscription package has an invalid duration", err)
	}

	sub := &models.VendorSubscription{
		Vendor:        vendorID,
		Package:       pkg.ID,
		StartDate:     now,
		EndDate:       endDate,
		Status:        models.SubscriptionStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		PaymentMethod: payment.method,
		AutoRenew:     req.AutoRenew,
	}
	tx := s.newTransaction(vendorID, pkg, models.TransactionTypeSubscription, payment.method)

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		active, err := s.store.Subscriptions.FindActiveByVendor(ctx, vendorID)
		switch {
		case err == nil && active.IsEntitled(now):
			return ErrBadRequest("Vendor already has an active subscription")
		case err == nil:
			// lapsed but not yet swept
			active.Status = models.SubscriptionStatusExpired
			if err := s.store.Subscriptions.Update(ctx, active); err != nil {
				return err
			}
		case !errors.Is(err, repositories.ErrNotFound):
			return err
		}
		return s.createPair(ctx, sub, tx)
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to create subscription")
	}

	s.notifier.NotifyAdmins(ctx, events.SubscriptionCreated, "New subscription started", map[string]string{
		"subscriptionId": sub.ID.Hex(),
		"vendorId":       vendorID.Hex(),
		"package":        pkg.Name,
	})

	return s.dispatch(ctx, sub, tx, pkg, payment)
}

// Renew buys the same package again, starting back to back with the current period
func (s *SubscriptionService) Renew(ctx context.Context, p Principal, subscriptionID string, req models.RenewRequest) (*SubscriptionResult, error) {
	id, err := primitive.ObjectIDFromHex(subscriptionID)
	if err != nil {
		return nil, ErrBadRequest("Invalid subscription ID")
	}
	current, err := s.store.Subscriptions.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Subscription not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load subscription", err)
	}
	if !p.IsAdmin() && current.Vendor != p.UserID {
		return nil, ErrForbidden("Not authorized to renew this subscription")
	}
	if current.PaymentStatus != models.PaymentStatusPaid {
		return nil, ErrBadRequest("Only a paid subscription can be renewed")
	}
	if current.Status != models.SubscriptionStatusActive && current.Status != models.SubscriptionStatusExpired {
		return nil, ErrBadRequest("Cannot renew a " + current.Status + " subscription")
	}

	pkg, err := s.activePackage(ctx, current.Package)
	if err != nil {
		return nil, err
	}

	payment, err := validatePayment(p, req.PaymentMethod, req.PhoneNumber, req.CardToken)
	if err != nil {
		return nil, err
	}

	start := RenewalStart(s.now(), current.EndDate)
	endDate, err := CalculateEndDate(start, pkg.Duration, pkg.DurationUnit)
	if err != nil {
		return nil, ErrInternal("Subscription package has an invalid duration", err)
	}

	previous := current.ID
	sub := &models.VendorSubscription{
		Vendor:               current.Vendor,
		Package:              pkg.ID,
		StartDate:            start,
		EndDate:              endDate,
		Status:               models.SubscriptionStatusPending,
		PaymentStatus:        models.PaymentStatusUnpaid,
		PaymentMethod:        payment.method,
		AutoRenew:            current.AutoRenew,
		PreviousSubscription: &previous,
	}
	tx := s.newTransaction(current.Vendor, pkg, models.TransactionTypeSubscriptionRenewal, payment.method)

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		renewals, err := s.store.Subscriptions.FindRenewals(ctx, current.ID)
		if err != nil {
			return err
		}
		for _, r := range renewals {
			if r.Status == models.SubscriptionStatusPending || r.PaymentStatus == models.PaymentStatusPaid {
				return ErrConflict("Subscription already has a renewal in progress or paid")
			}
		}

		active, err := s.store.Subscriptions.FindActiveByVendor(ctx, current.Vendor)
		if err == nil && active.ID != current.ID && active.IsEntitled(s.now()) {
			return ErrConflict("Vendor already has a different active subscription")
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return s.createPair(ctx, sub, tx)
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to create renewal")
	}

	return s.dispatch(ctx, sub, tx, pkg, payment)
}

// Cancel turns off a subscription. It is kept for history, never deleted.
// A payment still in flight for it is failed in the same transaction so a
// late confirmation cannot bring it back.
func (s *SubscriptionService) Cancel(ctx context.Context, p Principal, subscriptionID string) (*models.VendorSubscription, error) {
	id, err := primitive.ObjectIDFromHex(subscriptionID)
	if err != nil {
		return nil, ErrBadRequest("Invalid subscription ID")
	}

	var sub *models.VendorSubscription
	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if sub, err = s.store.Subscriptions.FindByID(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNotFound("Subscription not found")
			}
			return err
		}
		if !p.IsAdmin() && sub.Vendor != p.UserID {
			return ErrForbidden("Not authorized to cancel this subscription")
		}
		if sub.Status == models.SubscriptionStatusCancelled || sub.Status == models.SubscriptionStatusExpired {
			return ErrBadRequest("Subscription is already " + sub.Status)
		}

		if tx, err := s.store.Transactions.FindLatestBySubscription(ctx, sub.ID); err == nil && !tx.IsFinal() {
			tx.Status = models.TransactionStatusFailed
			tx.Notes = "Subscription cancelled before payment completed"
			if err := s.store.Transactions.Update(ctx, tx); err != nil {
				return err
			}
			sub.PaymentStatus = models.PaymentStatusFailed
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		now := s.now()
		sub.Status = models.SubscriptionStatusCancelled
		sub.AutoRenew = false
		sub.CancelledAt = &now
		return s.store.Subscriptions.Update(ctx, sub)
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to cancel subscription")
	}

	s.notifier.NotifyAdmins(ctx, events.SubscriptionCancelled, "Subscription cancelled", map[string]string{
		"subscriptionId": sub.ID.Hex(),
		"vendorId":       sub.Vendor.Hex(),
	})
	return sub, nil
}

// SetAutoRenew toggles the renewal reminder preference of an owned subscription
func (s *SubscriptionService) SetAutoRenew(ctx context.Context, p Principal, subscriptionID string, autoRenew bool) (*models.VendorSubscription, error) {
	id, err := primitive.ObjectIDFromHex(subscriptionID)
	if err != nil {
		return nil, ErrBadRequest("Invalid subscription ID")
	}
	sub, err := s.store.Subscriptions.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Subscription not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load subscription", err)
	}
	if !p.IsAdmin() && sub.Vendor != p.UserID {
		return nil, ErrForbidden("Not authorized to modify this subscription")
	}
	sub.AutoRenew = autoRenew
	if err := s.store.Subscriptions.Update(ctx, sub); err != nil {
		return nil, ErrInternal("Failed to update subscription", err)
	}
	return sub, nil
}

// CurrentSubscription returns the vendor's entitling subscription, or nil
func (s *SubscriptionService) CurrentSubscription(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, *models.SubscriptionPackage, error) {
	sub, err := s.store.Subscriptions.FindActiveByVendor(ctx, vendorID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, ErrInternal("Failed to load subscription", err)
	}
	if !sub.IsEntitled(s.now()) {
		return nil, nil, nil
	}
	pkg, err := s.store.Packages.FindByID(ctx, sub.Package)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, ErrInternal("Failed to load subscription package", err)
	}
	return sub, pkg, nil
}

// History lists subscriptions, scoped to the caller unless admin
func (s *SubscriptionService) History(ctx context.Context, p Principal, filter repositories.SubscriptionFilter) ([]models.VendorSubscription, int64, error) {
	if !p.IsAdmin() {
		filter.Vendor = &p.UserID
	}
	subs, total, err := s.store.Subscriptions.List(ctx, filter)
	if err != nil {
		return nil, 0, ErrInternal("Failed to list subscriptions", err)
	}
	return subs, total, nil
}

func (s *SubscriptionService) newTransaction(userID primitive.ObjectID, pkg *models.SubscriptionPackage, txType, method string) *models.PaymentTransaction {
	currency := pkg.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return &models.PaymentTransaction{
		User:          userID,
		Type:          txType,
		Amount:        pkg.Price,
		Currency:      currency,
		Status:        models.TransactionStatusPending,
		PaymentMethod: method,
		TransactionID: uuid.NewString(),
	}
}

func (s *SubscriptionService) createPair(ctx context.Context, sub *models.VendorSubscription, tx *models.PaymentTransaction) error {
	if err := s.store.Subscriptions.Create(ctx, sub); err != nil {
		return err
	}
	tx.RelatedSubscription = &sub.ID
	return s.store.Transactions.Create(ctx, tx)
}

// dispatch hands the pending pair to the chosen payment method
func (s *SubscriptionService) dispatch(ctx context.Context, sub *models.VendorSubscription, tx *models.PaymentTransaction, pkg *models.SubscriptionPackage, payment paymentInput) (*SubscriptionResult, error) {
	switch payment.method {
	case models.PaymentMethodMpesa:
		resp, err := s.mpesa.InitiateSTKPush(ctx, STKPushParams{
			PhoneNumber:      payment.phone,
			Amount:           tx.Amount,
			AccountReference: AccountReferencePrefix + tx.TransactionID,
			Description:      fmt.Sprintf("%s subscription", pkg.Name),
		})
		if err != nil {
			s.compensate(ctx, sub.ID, tx.ID, "M-Pesa STK push failed: "+err.Error())
			return nil, ErrBadGateway("Failed to initiate M-Pesa payment", err)
		}

		// reload both rows: a cancel may have landed while the push was in flight
		err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
			current, err := s.store.Transactions.FindByID(ctx, tx.ID)
			if err != nil {
				return err
			}
			current.MpesaDetails = &models.MpesaDetails{
				PhoneNumber:       payment.phone,
				MerchantRequestID: resp.MerchantRequestID,
				CheckoutRequestID: resp.CheckoutRequestID,
			}
			if err := s.store.Transactions.Update(ctx, current); err != nil {
				return err
			}
			tx = current
			fresh, err := s.store.Subscriptions.FindByID(ctx, sub.ID)
			if err != nil {
				return err
			}
			if fresh.Status == models.SubscriptionStatusPending {
				fresh.PaymentStatus = models.PaymentStatusPending
				if err := s.store.Subscriptions.Update(ctx, fresh); err != nil {
					return err
				}
			}
			sub = fresh
			return nil
		})
		if err != nil {
			return nil, ErrInternal("Failed to record M-Pesa request", err)
		}
		return &SubscriptionResult{
			Subscription: sub,
			Transaction:  tx,
			Message:      "Payment request sent to your phone. Complete the payment to activate your subscription.",
		}, nil

	case models.PaymentMethodCard:
		charge, err := s.cards.Charge(ctx, CardChargeParams{
			Token:       payment.cardToken,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Description: fmt.Sprintf("%s subscription", pkg.Name),
			Reference:   tx.TransactionID,
		})
		if err != nil {
			s.compensate(ctx, sub.ID, tx.ID, "card charge failed: "+err.Error())
			return nil, ErrBadGateway("Card payment failed", err)
		}
		return s.settle(ctx, sub.ID, tx.ID, charge.ChargeID, func(t *models.PaymentTransaction) {
			t.CardDetails = &models.CardDetails{Last4: charge.Last4, Brand: charge.Brand, ChargeID: charge.ChargeID}
		}, "Payment successful. Your subscription is now active.")

	case models.PaymentMethodAdmin:
		return s.settle(ctx, sub.ID, tx.ID, "ADMIN-"+uuid.NewString(), func(t *models.PaymentTransaction) {
			t.Notes = "Granted by admin"
		}, "Subscription activated by admin.")
	}
	return nil, ErrBadRequest("Invalid payment method")
}

func (s *SubscriptionService) settle(ctx context.Context, subID, txID primitive.ObjectID, receipt string, details func(*models.PaymentTransaction), message string) (*SubscriptionResult, error) {
	sub, tx, err := s.activate(ctx, subID, txID, receipt, details)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionStatusActive {
		message = "Payment received, but the subscription was " + sub.Status + " before it could be activated. It will be refunded."
	}
	return &SubscriptionResult{Subscription: sub, Transaction: tx, Message: message}, nil
}

// activate confirms payment of a pending subscription. In one transaction it
// expires the subscription the new one renews, marks the new one active and
// paid, and completes the transaction. A transaction that is already final is
// left untouched.
//
// Money that arrives for a subscription that can no longer be activated is
// still recorded, with a refund note. That covers a purchase cancelled or
// failed while its payment was in flight (no error) and a vendor who already
// holds a different entitling subscription (ErrConflict).
func (s *SubscriptionService) activate(ctx context.Context, subID, txID primitive.ObjectID, receipt string, details func(*models.PaymentTransaction)) (*models.VendorSubscription, *models.PaymentTransaction, error) {
	var (
		sub      *models.VendorSubscription
		tx       *models.PaymentTransaction
		changed  bool
		conflict bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if tx, err = s.store.Transactions.FindByID(ctx, txID); err != nil {
			return err
		}
		if sub, err = s.store.Subscriptions.FindByID(ctx, subID); err != nil {
			return err
		}
		if tx.Status == models.TransactionStatusCompleted || tx.Status == models.TransactionStatusRefunded {
			return nil
		}
		// money confirmed after the payment was given up on still has to be recorded
		late := tx.Status == models.TransactionStatusFailed

		now := s.now()
		if details != nil {
			details(tx)
		}
		tx.Status = models.TransactionStatusCompleted
		tx.CompletedAt = &now
		sub.PaymentStatus = models.PaymentStatusPaid
		sub.PaymentDetails = models.PaymentDetails{
			TransactionID: tx.TransactionID,
			Amount:        tx.Amount,
			Currency:      tx.Currency,
			PaymentDate:   &now,
			ReceiptNumber: receipt,
		}

		if late || sub.Status != models.SubscriptionStatusPending {
			tx.Notes = "Payment received for a " + sub.Status + " subscription, refund required"
			log.Printf("Payment %s received for %s subscription %s", tx.TransactionID, sub.Status, sub.ID.Hex())
			if err := s.store.Transactions.Update(ctx, tx); err != nil {
				return err
			}
			return s.store.Subscriptions.Update(ctx, sub)
		}

		active, err := s.store.Subscriptions.FindActiveByVendor(ctx, sub.Vendor)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
		case err != nil:
			return err
		case active.ID == sub.ID:
		case supersedes(sub, active, now):
			active.Status = models.SubscriptionStatusExpired
			if err := s.store.Subscriptions.Update(ctx, active); err != nil {
				return err
			}
		default:
			conflict = true
			tx.Notes = "Payment received while another subscription is active, refund required"
			log.Printf("Payment %s received for subscription %s while %s is active", tx.TransactionID, sub.ID.Hex(), active.ID.Hex())
			if err := s.store.Transactions.Update(ctx, tx); err != nil {
				return err
			}
			sub.Status = models.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			return s.store.Subscriptions.Update(ctx, sub)
		}

		if err := s.store.Transactions.Update(ctx, tx); err != nil {
			return err
		}
		sub.Status = models.SubscriptionStatusActive
		changed = true
		return s.store.Subscriptions.Update(ctx, sub)
	})
	if err != nil {
		return nil, nil, asServiceError(err, "Failed to activate subscription")
	}
	if conflict {
		return sub, tx, ErrConflict("Vendor already has an active subscription, the payment was recorded for refund")
	}

	if changed {
		data := map[string]string{"subscriptionId": sub.ID.Hex(), "vendorId": sub.Vendor.Hex()}
		s.notifier.NotifyUser(ctx, sub.Vendor, events.SubscriptionActivated, "Subscription active",
			fmt.Sprintf("Your subscription is active until %s.", sub.EndDate.Format("02 Jan 2006")), data)
		s.notifier.NotifyAdmins(ctx, events.SubscriptionActivated, "Subscription activated", data)
	}
	return sub, tx, nil
}

// supersedes reports whether activating sub may expire active: either sub
// renews it, or active has already run out and only awaits the sweep.
func supersedes(sub, active *models.VendorSubscription, now time.Time) bool {
	if sub.PreviousSubscription != nil && *sub.PreviousSubscription == active.ID {
		return true
	}
	return !active.IsEntitled(now)
}

// fail marks a pending payment failed and cancels its subscription
func (s *SubscriptionService) fail(ctx context.Context, subID, txID primitive.ObjectID, reason string, details func(*models.PaymentTransaction)) (*models.VendorSubscription, *models.PaymentTransaction, error) {
	var (
		sub     *models.VendorSubscription
		tx      *models.PaymentTransaction
		changed bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if tx, err = s.store.Transactions.FindByID(ctx, txID); err != nil {
			return err
		}
		if sub, err = s.store.Subscriptions.FindByID(ctx, subID); err != nil {
			return err
		}
		if tx.IsFinal() {
			return nil
		}

		if details != nil {
			details(tx)
		}
		tx.Status = models.TransactionStatusFailed
		tx.Notes = reason
		if err := s.store.Transactions.Update(ctx, tx); err != nil {
			return err
		}

		changed = true
		if sub.Status != models.SubscriptionStatusPending {
			return nil
		}
		now := s.now()
		sub.Status = models.SubscriptionStatusCancelled
		sub.PaymentStatus = models.PaymentStatusFailed
		sub.CancelledAt = &now
		return s.store.Subscriptions.Update(ctx, sub)
	})
	if err != nil {
		return nil, nil, asServiceError(err, "Failed to record failed payment")
	}

	if changed {
		data := map[string]string{"subscriptionId": sub.ID.Hex(), "vendorId": sub.Vendor.Hex()}
		s.notifier.NotifyUser(ctx, sub.Vendor, events.SubscriptionFailed, "Subscription payment failed", reason, data)
		s.notifier.NotifyAdmins(ctx, events.SubscriptionFailed, "Subscription payment failed", data)
	}
	return sub, tx, nil
}

// compensate undoes a purchase whose provider call failed. The caller's
// context may already be spent, so a fresh one bounds the cleanup.
func (s *SubscriptionService) compensate(ctx context.Context, subID, txID primitive.ObjectID, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, _, err := s.fail(cleanupCtx, subID, txID, reason, nil); err != nil {
		log.Printf("Failed to compensate subscription %s after provider error: %v", subID.Hex(), err)
	}
}

// asServiceError passes AppErrors through and maps repository sentinels
func asServiceError(err error, msg string) error {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return ErrNotFound("Record not found")
	case errors.Is(err, repositories.ErrDuplicate):
		return ErrConflict("Conflicting record already exists")
	case errors.Is(err, repositories.ErrInsufficientStock):
		return ErrBadRequest("Insufficient stock")
	}
	return ErrInternal(msg, err)
}
