package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/utils"
)

// OrderConfig holds the pricing constants applied at checkout
type OrderConfig struct {
	ShippingFee float64
	TaxRate     float64
}

// OrderResult is returned by CreateOrder
type OrderResult struct {
	Order       *models.Order              `json:"order"`
	Transaction *models.PaymentTransaction `json:"transaction,omitempty"`
	Message     string                     `json:"message"`
}

type OrderService struct {
	store    *repositories.Store
	mpesa    MobileMoneyGateway
	cards    CardGateway
	notifier *Notifier
	cfg      OrderConfig
	now      func() time.Time
}

func NewOrderService(store *repositories.Store, mpesa MobileMoneyGateway, cards CardGateway, notifier *Notifier, cfg OrderConfig) *OrderService {
	return &OrderService{store: store, mpesa: mpesa, cards: cards, notifier: notifier, cfg: cfg, now: time.Now}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type orderLine struct {
	productID primitive.ObjectID
	quantity  int
}

// mergeLines folds repeated products into one line, keeping first-seen order
func mergeLines(lines []orderLine) []orderLine {
	index := map[primitive.ObjectID]int{}
	merged := make([]orderLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.productID]; ok {
			merged[i].quantity += l.quantity
			continue
		}
		index[l.productID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

func validateOrderPayment(req models.CreateOrderRequest) (paymentInput, error) {
	switch req.PaymentMethod {
	case models.OrderPaymentCashOnDelivery:
		return paymentInput{method: req.PaymentMethod}, nil
	case models.OrderPaymentMpesa:
		phone := req.PhoneNumber
		if phone == "" {
			phone = req.ShippingAddress.Phone
		}
		normalized, err := utils.NormalizeKenyanPhone(phone)
		if err != nil {
			return paymentInput{}, ErrBadRequest("A valid M-Pesa phone number is required")
		}
		return paymentInput{method: req.PaymentMethod, phone: normalized}, nil
	case models.OrderPaymentCard:
		if req.CardToken == "" {
			return paymentInput{}, ErrBadRequest("Card token is required for card payment")
		}
		return paymentInput{method: req.PaymentMethod, cardToken: req.CardToken}, nil
	}
	return paymentInput{}, ErrBadRequest("Invalid payment method")
}

func (s *OrderService) newOrderNumber() string {
	return fmt.Sprintf("NV-%s-%s", s.now().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// CreateOrder checks out an explicit item list, or the caller's cart when
// the list is empty. Stock for every line is validated before any of it is
// reserved, and reservation happens in one transaction, so a rejected order
// leaves stock untouched.
func (s *OrderService) CreateOrder(ctx context.Context, p Principal, req models.CreateOrderRequest) (*OrderResult, error) {
	payment, err := validateOrderPayment(req)
	if err != nil {
		return nil, err
	}

	source := models.OrderSourceDirect
	var lines []orderLine
	for _, item := range req.Items {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, ErrBadRequest("Invalid product ID")
		}
		if item.Quantity < 1 {
			return nil, ErrBadRequest("Quantity must be at least 1")
		}
		lines = append(lines, orderLine{productID: id, quantity: item.Quantity})
	}
	if len(lines) == 0 {
		source = models.OrderSourceCart
		cart, err := s.store.Carts.FindByUser(ctx, p.UserID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInternal("Failed to load cart", err)
		}
		if cart != nil {
			for _, item := range cart.Items {
				lines = append(lines, orderLine{productID: item.Product, quantity: item.Quantity})
			}
		}
	}
	if len(lines) == 0 {
		return nil, ErrBadRequest("No items to order")
	}
	lines = mergeLines(lines)

	order := &models.Order{
		OrderNumber:     s.newOrderNumber(),
		User:            p.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   payment.method,
		PaymentStatus:   models.PaymentStatusUnpaid,
		Status:          models.OrderStatusPending,
		Source:          source,
	}
	var tx *models.PaymentTransaction

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			product, err := s.store.Products.FindByID(ctx, line.productID)
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNotFound("Product not found")
			}
			if err != nil {
				return err
			}
			if !product.IsActive {
				return ErrBadRequest(fmt.Sprintf("%s is no longer available", product.Name))
			}
			if product.Stock < line.quantity {
				return ErrBadRequest(fmt.Sprintf("Insufficient stock for %s", product.Name))
			}
			items = append(items, models.OrderItem{
				Product:  product.ID,
				Name:     product.Name,
				Price:    product.UnitPrice(),
				Quantity: line.quantity,
				Merchant: product.Merchant,
			})
		}

		for _, line := range lines {
			if err := s.store.Products.AdjustStock(ctx, line.productID, -line.quantity); err != nil {
				if errors.Is(err, repositories.ErrInsufficientStock) {
					return ErrBadRequest("Insufficient stock")
				}
				return err
			}
		}

		var subtotal float64
		for _, item := range items {
			subtotal += item.Price * float64(item.Quantity)
		}
		order.Items = items
		order.Subtotal = round2(subtotal)
		order.ShippingFee = s.cfg.ShippingFee
		order.Tax = round2(subtotal * s.cfg.TaxRate)
		order.Total = round2(order.Subtotal + order.ShippingFee + order.Tax)

		if payment.method != models.OrderPaymentCashOnDelivery {
			order.PaymentStatus = models.PaymentStatusPending
		}
		if err := s.store.Orders.Create(ctx, order); err != nil {
			return err
		}

		if payment.method != models.OrderPaymentCashOnDelivery {
			tx = &models.PaymentTransaction{
				User:          p.UserID,
				Type:          models.TransactionTypeOrderPayment,
				Amount:        order.Total,
				Currency:      defaultCurrency,
				Status:        models.TransactionStatusPending,
				PaymentMethod: payment.method,
				RelatedOrder:  &order.ID,
				TransactionID: uuid.NewString(),
			}
			if err := s.store.Transactions.Create(ctx, tx); err != nil {
				return err
			}
		}

		if source == models.OrderSourceCart {
			return s.store.Carts.Clear(ctx, p.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to create order")
	}

	result := &OrderResult{Order: order, Transaction: tx, Message: "Order placed successfully"}

	switch payment.method {
	case models.OrderPaymentMpesa:
		resp, err := s.mpesa.InitiateSTKPush(ctx, STKPushParams{
			PhoneNumber:      payment.phone,
			Amount:           tx.Amount,
			AccountReference: AccountReferencePrefix + tx.TransactionID,
			Description:      "Order " + order.OrderNumber,
		})
		if err != nil {
			s.compensate(ctx, order.ID, tx.ID, "M-Pesa STK push failed: "+err.Error())
			return nil, ErrBadGateway("Failed to initiate M-Pesa payment", err)
		}
		tx.MpesaDetails = &models.MpesaDetails{
			PhoneNumber:       payment.phone,
			MerchantRequestID: resp.MerchantRequestID,
			CheckoutRequestID: resp.CheckoutRequestID,
		}
		if err := s.store.Transactions.Update(ctx, tx); err != nil {
			return nil, ErrInternal("Failed to record M-Pesa request", err)
		}
		result.Message = "Order placed. Complete the M-Pesa payment on your phone."

	case models.OrderPaymentCard:
		charge, err := s.cards.Charge(ctx, CardChargeParams{
			Token:       payment.cardToken,
			Amount:      tx.Amount,
			Currency:    tx.Currency,
			Description: "Order " + order.OrderNumber,
			Reference:   tx.TransactionID,
		})
		if err != nil {
			s.compensate(ctx, order.ID, tx.ID, "card charge failed: "+err.Error())
			return nil, ErrBadGateway("Card payment failed", err)
		}
		if err := s.completePayment(ctx, order.ID, tx.ID, func(t *models.PaymentTransaction) {
			t.CardDetails = &models.CardDetails{Last4: charge.Last4, Brand: charge.Brand, ChargeID: charge.ChargeID}
		}); err != nil {
			return nil, err
		}
		if result.Order, err = s.store.Orders.FindByID(ctx, order.ID); err != nil {
			return nil, ErrInternal("Failed to reload order", err)
		}
		if result.Transaction, err = s.store.Transactions.FindByID(ctx, tx.ID); err != nil {
			return nil, ErrInternal("Failed to reload transaction", err)
		}
	}

	s.announceOrder(ctx, order)
	return result, nil
}

func (s *OrderService) announceOrder(ctx context.Context, order *models.Order) {
	data := map[string]string{"orderId": order.ID.Hex(), "orderNumber": order.OrderNumber}
	notified := map[primitive.ObjectID]bool{}
	for _, item := range order.Items {
		if notified[item.Merchant] {
			continue
		}
		notified[item.Merchant] = true
		s.notifier.NotifyUser(ctx, item.Merchant, events.OrderCreated, "New order",
			fmt.Sprintf("You have a new order %s", order.OrderNumber), data)
	}
	s.notifier.NotifyAdmins(ctx, events.OrderCreated, fmt.Sprintf("New order %s placed", order.OrderNumber), data)
}

// restock returns every ordered quantity and cancels the order
func (s *OrderService) restock(ctx context.Context, order *models.Order) error {
	for _, item := range order.Items {
		err := s.store.Products.AdjustStock(ctx, item.Product, item.Quantity)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
	}
	now := s.now()
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	return nil
}

// completePayment marks an order paid. Settled transactions are left alone.
func (s *OrderService) completePayment(ctx context.Context, orderID, txID primitive.ObjectID, details func(*models.PaymentTransaction)) error {
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		tx, err := s.store.Transactions.FindByID(ctx, txID)
		if err != nil {
			return err
		}
		if tx.IsFinal() {
			return nil
		}
		order, err := s.store.Orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		now := s.now()
		if details != nil {
			details(tx)
		}
		tx.Status = models.TransactionStatusCompleted
		tx.CompletedAt = &now
		if order.Status == models.OrderStatusCancelled {
			tx.Notes = "Payment received for a cancelled order, refund required"
			log.Printf("Payment %s received for cancelled order %s", tx.TransactionID, order.OrderNumber)
		}
		if err := s.store.Transactions.Update(ctx, tx); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentStatusPaid
		return s.store.Orders.Update(ctx, order)
	})
	if err != nil {
		return asServiceError(err, "Failed to record order payment")
	}
	return nil
}

// failPayment marks the payment failed and releases the reserved stock
func (s *OrderService) failPayment(ctx context.Context, orderID, txID primitive.ObjectID, reason string, details func(*models.PaymentTransaction)) error {
	var order *models.Order
	changed := false
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		tx, err := s.store.Transactions.FindByID(ctx, txID)
		if err != nil {
			return err
		}
		if tx.IsFinal() {
			return nil
		}
		if order, err = s.store.Orders.FindByID(ctx, orderID); err != nil {
			return err
		}

		if details != nil {
			details(tx)
		}
		tx.Status = models.TransactionStatusFailed
		tx.Notes = reason
		if err := s.store.Transactions.Update(ctx, tx); err != nil {
			return err
		}

		order.PaymentStatus = models.PaymentStatusFailed
		if order.Status == models.OrderStatusPending {
			if err := s.restock(ctx, order); err != nil {
				return err
			}
		}
		changed = true
		return s.store.Orders.Update(ctx, order)
	})
	if err != nil {
		return asServiceError(err, "Failed to record failed payment")
	}
	if changed {
		s.notifier.NotifyUser(ctx, order.User, events.OrderCancelled, "Payment failed",
			fmt.Sprintf("Payment for order %s failed and the order was cancelled.", order.OrderNumber),
			map[string]string{"orderId": order.ID.Hex()})
	}
	return nil
}

func (s *OrderService) compensate(ctx context.Context, orderID, txID primitive.ObjectID, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.failPayment(cleanupCtx, orderID, txID, reason, nil); err != nil {
		log.Printf("Failed to compensate order %s after provider error: %v", orderID.Hex(), err)
	}
}

func (s *OrderService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	id, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, ErrBadRequest("Invalid order ID")
	}
	order, err := s.store.Orders.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound("Order not found")
	}
	if err != nil {
		return nil, ErrInternal("Failed to load order", err)
	}
	return order, nil
}

// GetOrder returns an order visible to the caller
func (s *OrderService) GetOrder(ctx context.Context, p Principal, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && order.User != p.UserID && !(p.IsMerchant() && order.HasMerchant(p.UserID)) {
		return nil, ErrForbidden("Not authorized to view this order")
	}
	return order, nil
}

// ListOrders scopes the listing by role: own orders for customers, orders
// containing own products for merchants, everything for admins.
func (s *OrderService) ListOrders(ctx context.Context, p Principal, filter repositories.OrderFilter) ([]models.Order, int64, error) {
	switch {
	case p.IsAdmin():
	case p.IsMerchant():
		filter.User = nil
		filter.Merchant = &p.UserID
	default:
		filter.Merchant = nil
		filter.User = &p.UserID
	}
	orders, total, err := s.store.Orders.List(ctx, filter)
	if err != nil {
		return nil, 0, ErrInternal("Failed to list orders", err)
	}
	return orders, total, nil
}

// ListMyOrders lists the orders the caller placed, whatever their role
func (s *OrderService) ListMyOrders(ctx context.Context, p Principal, page repositories.Page) ([]models.Order, int64, error) {
	orders, total, err := s.store.Orders.List(ctx, repositories.OrderFilter{User: &p.UserID, Page: page})
	if err != nil {
		return nil, 0, ErrInternal("Failed to list orders", err)
	}
	return orders, total, nil
}

// CancelOrder restores exactly the ordered quantities and cancels the order
func (s *OrderService) CancelOrder(ctx context.Context, p Principal, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && order.User != p.UserID {
		return nil, ErrForbidden("Not authorized to cancel this order")
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.store.Orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status == models.OrderStatusDelivered || current.Status == models.OrderStatusCancelled {
			return ErrBadRequest("Cannot cancel an order that is already " + current.Status)
		}
		if err := s.restock(ctx, current); err != nil {
			return err
		}

		if tx, err := s.store.Transactions.FindLatestByOrder(ctx, current.ID); err == nil && !tx.IsFinal() {
			tx.Status = models.TransactionStatusFailed
			tx.Notes = "Order cancelled before payment completed"
			if err := s.store.Transactions.Update(ctx, tx); err != nil {
				return err
			}
			current.PaymentStatus = models.PaymentStatusFailed
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		order = current
		return s.store.Orders.Update(ctx, current)
	})
	if err != nil {
		return nil, asServiceError(err, "Failed to cancel order")
	}

	data := map[string]string{"orderId": order.ID.Hex(), "orderNumber": order.OrderNumber}
	s.notifier.NotifyAdmins(ctx, events.OrderCancelled, fmt.Sprintf("Order %s cancelled", order.OrderNumber), data)
	return order, nil
}

var orderStatusRank = map[string]int{
	models.OrderStatusPending:    0,
	models.OrderStatusProcessing: 1,
	models.OrderStatusShipped:    2,
	models.OrderStatusDelivered:  3,
}

// UpdateOrderStatus moves an order forward through fulfilment
func (s *OrderService) UpdateOrderStatus(ctx context.Context, p Principal, orderID, status string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !(p.IsMerchant() && order.HasMerchant(p.UserID)) {
		return nil, ErrForbidden("Not authorized to update this order")
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, ErrBadRequest("Cannot update a cancelled order")
	}

	next, ok := orderStatusRank[status]
	if !ok || status == models.OrderStatusPending {
		return nil, ErrBadRequest("Invalid order status")
	}
	if next <= orderStatusRank[order.Status] {
		return nil, ErrBadRequest(fmt.Sprintf("Cannot move order from %s to %s", order.Status, status))
	}
	if next >= orderStatusRank[models.OrderStatusShipped] &&
		order.PaymentMethod != models.OrderPaymentCashOnDelivery &&
		order.PaymentStatus != models.PaymentStatusPaid {
		return nil, ErrBadRequest("Order cannot ship before its payment is confirmed")
	}

	order.Status = status
	if status == models.OrderStatusDelivered {
		now := s.now()
		order.DeliveredAt = &now
		if order.PaymentMethod == models.OrderPaymentCashOnDelivery {
			order.PaymentStatus = models.PaymentStatusPaid
		}
	}
	if err := s.store.Orders.Update(ctx, order); err != nil {
		return nil, ErrInternal("Failed to update order", err)
	}

	s.notifier.NotifyUser(ctx, order.User, events.OrderStatusChanged, "Order update",
		fmt.Sprintf("Your order %s is now %s", order.OrderNumber, status),
		map[string]string{"orderId": order.ID.Hex(), "status": status})
	return order, nil
}
