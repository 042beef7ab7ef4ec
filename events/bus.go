// Package events carries live notifications between the services that
// produce them and the websocket hub that delivers them.
package events

import (
	"context"
	"sync"
	"time"
)

// Topics
const (
	OrderCreated               = "order.created"
	OrderCancelled             = "order.cancelled"
	OrderStatusChanged         = "order.status_changed"
	SubscriptionCreated        = "subscription.created"
	SubscriptionActivated      = "subscription.activated"
	SubscriptionFailed         = "subscription.failed"
	SubscriptionCancelled      = "subscription.cancelled"
	MerchantVerified           = "merchant.verified"
	MerchantRejected           = "merchant.rejected"
	MerchantDocumentsSubmitted = "merchant.documents_submitted"
	ReviewCreated              = "review.created"
)

// Audiences
const (
	AudienceAdmins = "admins"
	AudienceUser   = "user"
)

// Event is one notification. UserID is set for user audience events.
type Event struct {
	Topic     string            `json:"topic"`
	Audience  string            `json:"audience"`
	UserID    string            `json:"userId,omitempty"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Bus is a fire-and-forget publish/subscribe channel
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler and returns a function removing it.
	Subscribe(handler func(Event)) (unsubscribe func())
}

// fanout delivers events to local subscribers
type fanout struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

func newFanout() *fanout {
	return &fanout{handlers: map[int]func(Event){}}
}

func (f *fanout) subscribe(handler func(Event)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fanout) deliver(event Event) {
	f.mu.RLock()
	handlers := make([]func(Event), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// MemoryBus delivers synchronously within one process
type MemoryBus struct {
	subs *fanout
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: newFanout()}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	b.subs.deliver(event)
	return nil
}

func (b *MemoryBus) Subscribe(handler func(Event)) func() {
	return b.subs.subscribe(handler)
}

// ForAdmins builds an admin dashboard event
func ForAdmins(topic, message string, data map[string]string) Event {
	return Event{Topic: topic, Audience: AudienceAdmins, Message: message, Data: data}
}

// ForUser builds an event addressed to one user
func ForUser(userID, topic, message string, data map[string]string) Event {
	return Event{Topic: topic, Audience: AudienceUser, UserID: userID, Message: message, Data: data}
}
