package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

// Principal is the authenticated caller as seen by services
type Principal struct {
	UserID primitive.ObjectID
	Role   string
}

func (p Principal) IsAdmin() bool    { return p.Role == models.RoleAdmin }
func (p Principal) IsMerchant() bool { return p.Role == models.RoleMerchant }

// Notifier fans a business event out to the in-app inbox, the live event
// bus, push and email. Every channel is best effort: failures are logged
// and never fail the operation that produced the event.
type Notifier struct {
	store      *repositories.Store
	bus        events.Bus
	pusher     Pusher
	mailer     Mailer
	adminEmail string
}

func NewNotifier(store *repositories.Store, bus events.Bus, pusher Pusher, mailer Mailer, adminEmail string) *Notifier {
	return &Notifier{store: store, bus: bus, pusher: pusher, mailer: mailer, adminEmail: adminEmail}
}

// NotifyUser stores an inbox entry, publishes it live and pushes it to the user's device
func (n *Notifier) NotifyUser(ctx context.Context, userID primitive.ObjectID, topic, title, message string, data map[string]string) {
	if n == nil {
		return
	}

	notification := &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      topic,
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := n.store.Notifications.Create(ctx, notification); err != nil {
		log.Printf("Failed to save notification for user %s: %v", userID.Hex(), err)
	}

	n.publish(ctx, events.ForUser(userID.Hex(), topic, message, data))

	if n.pusher == nil {
		return
	}
	user, err := n.store.Users.FindByID(ctx, userID)
	if err != nil || user.FCMToken == "" {
		return
	}
	if err := n.pusher.Push(ctx, user.FCMToken, title, message, data); err != nil {
		log.Printf("Failed to send push notification to user %s: %v", userID.Hex(), err)
	}
}

// NotifyAdmins publishes to the admin dashboard feed
func (n *Notifier) NotifyAdmins(ctx context.Context, topic, message string, data map[string]string) {
	if n == nil {
		return
	}
	n.publish(ctx, events.ForAdmins(topic, message, data))
}

// Email sends a message, logging rather than returning failures
func (n *Notifier) Email(ctx context.Context, to, subject, body string) {
	if n == nil || n.mailer == nil || to == "" {
		return
	}
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		log.Printf("Failed to send email %q to %s: %v", subject, to, err)
	}
}

// EmailAdmin sends to the configured operations inbox
func (n *Notifier) EmailAdmin(ctx context.Context, subject, body string) {
	if n == nil {
		return
	}
	n.Email(ctx, n.adminEmail, subject, body)
}

func (n *Notifier) publish(ctx context.Context, event events.Event) {
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s event: %v", event.Topic, err)
	}
}
