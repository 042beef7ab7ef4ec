package services

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// Pusher sends a mobile push notification to a device token
type Pusher interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

// FCMPusher sends through Firebase Cloud Messaging
type FCMPusher struct {
	app *firebase.App
}

func NewFCMPusher(app *firebase.App) *FCMPusher {
	return &FCMPusher{app: app}
}

func (p *FCMPusher) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	if p.app == nil {
		return fmt.Errorf("firebase app not initialized")
	}

	client, err := p.app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "nairobi_verified_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{Title: title, Body: body},
					Sound: "default",
				},
			},
		},
	}

	response, err := client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send FCM notification: %w", err)
	}
	log.Printf("FCM notification sent: %s", response)
	return nil
}
