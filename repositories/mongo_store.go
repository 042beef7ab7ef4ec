package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	UsersCollection         = "users"
	ProductsCollection      = "products"
	CartsCollection         = "carts"
	OrdersCollection        = "orders"
	ReviewsCollection       = "reviews"
	PackagesCollection      = "subscriptionPackages"
	SubscriptionsCollection = "vendorSubscriptions"
	TransactionsCollection  = "paymentTransactions"
	FlashSalesCollection    = "flashSales"
	SettingsCollection      = "settings"
	NotificationsCollection = "notifications"
)

// NewMongoStore wires every repository to db. Multi-document transactions
// need a replica set; with useTransactions false the unit of work runs
// without a session.
func NewMongoStore(db *mongo.Database, useTransactions bool) *Store {
	store := &Store{
		Users:         NewUserRepository(db),
		Products:      &mongoProductRepository{coll: db.Collection(ProductsCollection)},
		Carts:         &mongoCartRepository{coll: db.Collection(CartsCollection)},
		Orders:        &mongoOrderRepository{coll: db.Collection(OrdersCollection)},
		Reviews:       &mongoReviewRepository{coll: db.Collection(ReviewsCollection)},
		Packages:      &mongoPackageRepository{coll: db.Collection(PackagesCollection)},
		Subscriptions: &mongoSubscriptionRepository{coll: db.Collection(SubscriptionsCollection)},
		Transactions:  &mongoTransactionRepository{coll: db.Collection(TransactionsCollection)},
		FlashSales:    &mongoFlashSaleRepository{coll: db.Collection(FlashSalesCollection)},
		Settings:      &mongoSettingsRepository{coll: db.Collection(SettingsCollection)},
		Notifications: &mongoNotificationRepository{coll: db.Collection(NotificationsCollection)},
	}
	if useTransactions {
		store.tx = &mongoTransactor{client: db.Client()}
	}
	return store
}

type mongoTransactor struct {
	client *mongo.Client
}

func (t *mongoTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Already inside a session: join it.
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// findOne decodes a single document, mapping no documents to ErrNotFound
func findOne(ctx context.Context, coll *mongo.Collection, filter interface{}, out interface{}, opts ...*options.FindOneOptions) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// findPage runs a paginated find sorted newest first, along with the total count
func findPage[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, page Page) ([]T, int64, error) {
	page = page.Normalize()

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(page.skip()).
		SetLimit(int64(page.Limit))

	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// findAll returns every matching document in the given order
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// replaceByID overwrites a whole document, mapping a miss to ErrNotFound
func replaceByID(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func insert(ctx context.Context, coll *mongo.Collection, doc interface{}) error {
	_, err := coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// sumField totals field over the documents matching match
func sumField(ctx context.Context, coll *mongo.Collection, match bson.M, field string) (float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$" + field}}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var result []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Total, nil
}

// containsRegex is a case insensitive literal match
func containsRegex(term string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
}

func stamp(createdAt *time.Time, updatedAt *time.Time) {
	now := time.Now()
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}
