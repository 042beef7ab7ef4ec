// config/db.go
package config

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/nairobi_verified/models"
	"github.com/HSouheill/nairobi_verified/repositories"
)

// ConnectDB establishes connection to MongoDB
func ConnectDB(s *Settings) (*mongo.Client, error) {
	mongoURI := s.MongoURI
	if mongoURI == "" {
		if s.IsProduction() {
			return nil, errors.New("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
		mongoURI = "mongodb://localhost:27017/?replicaSet=rs0"
	}

	log.Printf("Connecting to MongoDB at: %s", maskMongoURI(mongoURI))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB")
	return client, nil
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		repositories.UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "verificationStatus", Value: 1}}},
		},
		repositories.ProductsCollection: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "isActive", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		repositories.CartsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		repositories.OrdersCollection: {
			{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "items.merchant", Value: 1}}},
		},
		repositories.ReviewsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "product", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "product", Value: 1}, {Key: "status", Value: 1}}},
		},
		repositories.SubscriptionsCollection: {
			// one active subscription per vendor
			{
				Keys: bson.D{{Key: "vendor", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("vendor_active_unique").
					SetPartialFilterExpression(bson.M{"status": models.SubscriptionStatusActive}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "endDate", Value: 1}}},
		},
		repositories.TransactionsCollection: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "mpesaDetails.checkoutRequestId", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "status", Value: 1}}},
		},
		repositories.NotificationsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
}

// EnsureIndexes creates the indexes the repositories rely on. Failures are
// logged so one bad index does not keep the API down.
func EnsureIndexes(db *mongo.Database) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for collName, indexes := range indexModels() {
		if _, err := db.Collection(collName).Indexes().CreateMany(ctx, indexes); err != nil {
			log.Printf("Error creating indexes for %s: %v", collName, err)
		}
	}

	log.Println("Database indexes setup complete")
}

// maskMongoURI masks the password in MongoDB URI for logging
func maskMongoURI(uri string) string {
	if idx := strings.Index(uri, "@"); idx > 0 {
		if colonIdx := strings.LastIndex(uri[:idx], ":"); colonIdx > 0 {
			return uri[:colonIdx+1] + "***" + uri[idx:]
		}
	}
	return uri
}
