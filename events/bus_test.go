package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_DeliversToEverySubscriber(t *testing.T) {
	bus := NewMemoryBus()

	var first, second []Event
	bus.Subscribe(func(e Event) { first = append(first, e) })
	bus.Subscribe(func(e Event) { second = append(second, e) })

	require.NoError(t, bus.Publish(context.Background(), ForAdmins(OrderCreated, "New order", map[string]string{"orderId": "1"})))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, OrderCreated, first[0].Topic)
	assert.Equal(t, AudienceAdmins, first[0].Audience)
	assert.False(t, first[0].CreatedAt.IsZero())
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus()

	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })

	require.NoError(t, bus.Publish(context.Background(), ForUser("u1", SubscriptionActivated, "active", nil)))
	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), ForUser("u1", SubscriptionActivated, "active", nil)))

	assert.Equal(t, 1, count)
}

func TestForUser(t *testing.T) {
	e := ForUser("abc", MerchantVerified, "verified", nil)
	assert.Equal(t, AudienceUser, e.Audience)
	assert.Equal(t, "abc", e.UserID)
}
