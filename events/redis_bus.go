package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel is the Redis pub/sub channel events travel on
const DefaultChannel = "nairobi_verified:events"

// RedisBus publishes through Redis so every API instance sees every event.
// Local subscribers receive events only through the Redis round trip.
type RedisBus struct {
	client  *redis.Client
	channel string
	subs    *fanout
	pubsub  *redis.PubSub
}

// NewRedisBus subscribes to channel and starts delivering until ctx is done
func NewRedisBus(ctx context.Context, client *redis.Client, channel string) (*RedisBus, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	pubsub := client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	bus := &RedisBus{
		client:  client,
		channel: channel,
		subs:    newFanout(),
		pubsub:  pubsub,
	}
	go bus.run(ctx)
	return bus, nil
}

func (b *RedisBus) run(ctx context.Context) {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Dropping malformed event on %s: %v", b.channel, err)
				continue
			}
			b.subs.deliver(event)
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(handler func(Event)) func() {
	return b.subs.subscribe(handler)
}
