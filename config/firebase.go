package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase Admin SDK. It returns a nil app when
// no credentials are configured; push notifications are then skipped.
func InitFirebase(ctx context.Context, s *Settings) (*firebase.App, error) {
	var opt option.ClientOption
	switch {
	case s.FirebaseCredentialsBase64 != "":
		log.Printf("Using Firebase credentials from base64 environment variable")
		decoded, err := base64.StdEncoding.DecodeString(s.FirebaseCredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decoding FIREBASE_CREDENTIALS_BASE64: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
	case s.FirebaseCredentialsFile != "":
		if _, err := os.Stat(s.FirebaseCredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file: %w", err)
		}
		log.Printf("Using Firebase credentials file: %s", s.FirebaseCredentialsFile)
		opt = option.WithCredentialsFile(s.FirebaseCredentialsFile)
	default:
		log.Println("Firebase credentials not configured, push notifications disabled")
		return nil, nil
	}

	var cfg *firebase.Config
	if s.FirebaseProjectID != "" {
		cfg = &firebase.Config{ProjectID: s.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opt)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	return app, nil
}
